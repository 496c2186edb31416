package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cartella/cartella/internal/platform/auth"
)

func doctorRequest(req *http.Request, doctorID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), auth.UserIDKey, doctorID)
	ctx = context.WithValue(ctx, auth.RoleKey, auth.RoleDoctor)
	return req.WithContext(ctx)
}

func TestCreateHandlerAssignsCode(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))
	doctorID := uuid.New()

	body := `{"first_name":"Mario","last_name":"Rossi","sex":"M","status":"attivo"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = doctorRequest(req, doctorID)
	rec := httptest.NewRecorder()

	if err := h.Create(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Create handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.Code != "PAT001" {
		t.Errorf("code = %q, want PAT001", p.Code)
	}
	if p.DoctorID != doctorID {
		t.Errorf("doctor_id = %v, want the caller", p.DoctorID)
	}
}

func TestGetHandlerHidesOtherDoctorsPatients(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)

	owner := Viewer{UserID: uuid.New(), Role: auth.RoleDoctor}
	p := &Patient{FirstName: "Anna", LastName: "Bianchi", Status: StatusActive}
	if err := svc.Create(context.Background(), owner, p); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/patients/"+p.ID.String(), nil)
	req = doctorRequest(req, uuid.New())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another doctor's patient, got %v", err)
	}
}

func TestStatsHandler(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	h := NewHandler(svc)

	doctorID := uuid.New()
	viewer := Viewer{UserID: doctorID, Role: auth.RoleDoctor}
	for _, status := range []string{StatusActive, StatusActive, StatusPending} {
		p := &Patient{FirstName: "P", LastName: "P", Status: status}
		if err := svc.Create(context.Background(), viewer, p); err != nil {
			t.Fatalf("seed patient: %v", err)
		}
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req = doctorRequest(req, doctorID)
	rec := httptest.NewRecorder()

	if err := h.Stats(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Stats handler error: %v", err)
	}

	var stats Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Pending != 1 {
		t.Errorf("stats = %+v, want 3/2/1", stats)
	}
}
