package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

const listPayload = `[
	{
		"appointment_id": "a1",
		"start_time": "2025-05-08T12:00:00Z",
		"end_time": "2025-05-08T12:30:00Z",
		"description": "retorno",
		"transport": true,
		"active": true,
		"specialty": {"specialty_id": "card", "name": "Cardiologia"},
		"procedure": {"procedure_id": "consulta", "name": "Consulta", "specialty_id": "card"},
		"professional": {"professional_id": "ana", "name": "Dra. Ana", "specialty_id": "card"}
	},
	{
		"appointment_id": "a2",
		"start_time": "2025-05-08T15:00:00Z",
		"end_time": "2025-05-08T15:30:00Z",
		"active": false,
		"cancelled_at": "2025-05-01T10:00:00Z",
		"specialty": {"specialty_id": "fisio", "name": "Fisioterapia"},
		"procedure": {"procedure_id": "rpg", "name": "RPG", "specialty_id": "fisio"},
		"professional": {"professional_id": "bruno", "name": "Bruno", "specialty_id": "fisio"}
	}
]`

func TestClient_ListAppointmentsConvertsZone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agenda" || r.Method != http.MethodGet {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listPayload))
	}))
	defer srv.Close()

	zone := time.FixedZone("BRT", -3*60*60)
	c := NewClient(srv.URL, zone)

	appts, err := c.ListAppointments(context.Background())
	if err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(appts))
	}

	a := appts[0]
	if a.ID != "a1" || !a.Active || !a.Transport {
		t.Fatalf("first appointment = %+v", a)
	}
	if a.Start.Location() != zone {
		t.Fatalf("start not converted to display zone: %v", a.Start.Location())
	}
	if a.Start.Hour() != 9 {
		t.Fatalf("12:00Z in BRT should be 09:00, got %d", a.Start.Hour())
	}
	if a.Specialty.Name != "Cardiologia" || a.Procedure.SpecialtyID != "card" {
		t.Fatalf("references not mapped: %+v", a)
	}

	b := appts[1]
	if b.Active || b.CancelledAt == nil {
		t.Fatalf("cancelled appointment not mapped: %+v", b)
	}
}

func TestClient_CreateAppointmentSendsUTC(t *testing.T) {
	var got struct {
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
		SpecialtyID string `json:"specialty_id"`
		Transport   bool   `json:"transport"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agenda" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"appointment_id": "srv-1",
			"start_time": "2025-05-08T12:00:00Z",
			"end_time": "2025-05-08T12:30:00Z",
			"active": true,
			"specialty": {"specialty_id": "card", "name": "Cardiologia"},
			"procedure": {"procedure_id": "consulta", "name": "Consulta", "specialty_id": "card"},
			"professional": {"professional_id": "ana", "name": "Dra. Ana", "specialty_id": "card"}
		}`))
	}))
	defer srv.Close()

	zone := time.FixedZone("BRT", -3*60*60)
	c := NewClient(srv.URL, zone)

	created, err := c.CreateAppointment(context.Background(), model.Draft{
		Start:          time.Date(2025, 5, 8, 9, 0, 0, 0, zone),
		End:            time.Date(2025, 5, 8, 9, 30, 0, 0, zone),
		SpecialtyID:    "card",
		ProcedureID:    "consulta",
		ProfessionalID: "ana",
		Transport:      true,
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if got.StartTime != "2025-05-08T12:00:00Z" {
		t.Fatalf("start sent as %q, want UTC", got.StartTime)
	}
	if !got.Transport || got.SpecialtyID != "card" {
		t.Fatalf("request body = %+v", got)
	}
	if created.ID != "srv-1" {
		t.Fatalf("created id = %q", created.ID)
	}
}

func TestClient_CancelAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/agenda/cancel" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			AppointmentID string `json:"appointment_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AppointmentID != "a1" {
			t.Fatalf("bad cancel request: %+v err=%v", req, err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"appointment_id": "a1", "status": "cancelled", "cancelled_at": "2025-05-08T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC)
	cancelledAt, err := c.CancelAppointment(context.Background(), "a1")
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if !cancelledAt.Equal(time.Date(2025, 5, 8, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("cancelledAt = %s", cancelledAt.Format(time.RFC3339))
	}
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "appointment not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC)
	_, err := c.CancelAppointment(context.Background(), "ghost")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound || statusErr.Body != "appointment not found" {
		t.Fatalf("StatusError = %+v", statusErr)
	}
}

func TestClient_CatalogQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/catalog/specialties":
			_, _ = w.Write([]byte(`[{"specialty_id": "card", "name": "Cardiologia"}]`))
		case "/api/v1/catalog/procedures":
			if r.URL.Query().Get("specialty_id") != "card" {
				t.Fatalf("missing specialty_id query")
			}
			_, _ = w.Write([]byte(`[{"procedure_id": "consulta", "name": "Consulta", "specialty_id": "card"}]`))
		case "/api/v1/catalog/professionals":
			_, _ = w.Write([]byte(`[{"professional_id": "ana", "name": "Dra. Ana", "specialty_id": "card"}]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.UTC)
	ctx := context.Background()

	specialties, err := c.Specialties(ctx)
	if err != nil || len(specialties) != 1 || specialties[0].ID != "card" {
		t.Fatalf("Specialties = %+v err=%v", specialties, err)
	}
	procedures, err := c.ProceduresBySpecialty(ctx, "card")
	if err != nil || len(procedures) != 1 || procedures[0].ID != "consulta" {
		t.Fatalf("Procedures = %+v err=%v", procedures, err)
	}
	professionals, err := c.ProfessionalsBySpecialty(ctx, "card")
	if err != nil || len(professionals) != 1 || professionals[0].ID != "ana" {
		t.Fatalf("Professionals = %+v err=%v", professionals, err)
	}
}
