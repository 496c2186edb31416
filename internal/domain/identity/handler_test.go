package identity

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/cartella/cartella/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *mockRepo) {
	t.Helper()
	repo := newMockRepo()
	issuer := auth.NewTokenIssuer([]byte("test-secret-test-secret-test-secret"), time.Hour)
	return NewHandler(NewService(repo, issuer)), repo
}

func TestLoginHandler(t *testing.T) {
	h, repo := newTestHandler(t)
	seedUser(t, repo, "drrossi", "rossi@example.com", "sup3r-secret", auth.RoleDoctor, true)

	e := echo.New()
	body := `{"login":"drrossi","password":"sup3r-secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Login(c); err != nil {
		t.Fatalf("Login handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected token in response")
	}
	if resp.User == nil || resp.User.Username != "drrossi" {
		t.Errorf("unexpected user in response: %+v", resp.User)
	}
	if strings.Contains(rec.Body.String(), "password_hash") {
		t.Error("response must not expose the password hash")
	}
}

func TestLoginHandlerRejectsBadCredentials(t *testing.T) {
	h, repo := newTestHandler(t)
	seedUser(t, repo, "drrossi", "rossi@example.com", "sup3r-secret", auth.RoleDoctor, true)

	e := echo.New()
	body := `{"login":"drrossi","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}
