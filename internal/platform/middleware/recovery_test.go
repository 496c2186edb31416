package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	handler := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("kaboom")
	})

	err := handler(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}

	line := buf.String()
	if !strings.Contains(line, `"panic":"kaboom"`) || !strings.Contains(line, `"path":"/patients"`) {
		t.Errorf("log line missing panic details: %s", line)
	}
	if !strings.Contains(line, `"stack"`) {
		t.Errorf("log line missing stack: %s", line)
	}
}

func TestRecoveryPassesThroughCleanHandlers(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestIDFrom(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	if got := RequestIDFrom(c); got != "" {
		t.Errorf("RequestIDFrom before middleware = %q, want empty", got)
	}

	handler := RequestID()(func(c echo.Context) error {
		if RequestIDFrom(c) == "" {
			t.Error("expected a generated request id")
		}
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
