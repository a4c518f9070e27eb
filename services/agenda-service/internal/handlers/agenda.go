package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/model"
	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/outbox"
	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/storage"
)

type AgendaHandler struct {
	repo       *storage.AgendaRepository
	catalog    CatalogSource
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

// CatalogSource is the read side of the catalog, served either straight from
// Postgres or through the Redis cache.
type CatalogSource interface {
	Specialties(ctx context.Context) ([]model.Specialty, error)
	ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error)
	ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error)
}

func NewAgendaHandler(repo *storage.AgendaRepository, catalog CatalogSource, outboxRepo *outbox.Repository, logger *slog.Logger) *AgendaHandler {
	return &AgendaHandler{
		repo:       repo,
		catalog:    catalog,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

type appointmentRequest struct {
	AppointmentID  string `json:"appointment_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	SpecialtyID    string `json:"specialty_id"`
	ProcedureID    string `json:"procedure_id"`
	ProfessionalID string `json:"professional_id"`
	Description    string `json:"description"`
	Transport      bool   `json:"transport"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

type specialtyItem struct {
	SpecialtyID string `json:"specialty_id"`
	Name        string `json:"name"`
}

type procedureItem struct {
	ProcedureID string `json:"procedure_id"`
	Name        string `json:"name"`
	SpecialtyID string `json:"specialty_id"`
}

type professionalItem struct {
	ProfessionalID string `json:"professional_id"`
	Name           string `json:"name"`
	SpecialtyID    string `json:"specialty_id"`
}

type appointmentItem struct {
	AppointmentID string           `json:"appointment_id"`
	StartTime     string           `json:"start_time"`
	EndTime       string           `json:"end_time"`
	Description   string           `json:"description"`
	Transport     bool             `json:"transport"`
	Active        bool             `json:"active"`
	CancelledAt   string           `json:"cancelled_at,omitempty"`
	Specialty     specialtyItem    `json:"specialty"`
	Procedure     procedureItem    `json:"procedure"`
	Professional  professionalItem `json:"professional"`
}

func (h *AgendaHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	details, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("agenda list failed", "err", err)
		http.Error(w, "failed to list agenda", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(details))
	for _, d := range details {
		items = append(items, toAppointmentItem(d))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AgendaHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	appt, ok := h.decodeAppointment(w, r)
	if !ok {
		return
	}
	appt.ID = uuid.NewString()

	ctx := r.Context()
	if !h.validateCatalogScope(ctx, w, appt) {
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.Create(ctx, tx, &appt); err != nil {
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "unknown catalog reference", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("appointment insert failed", "err", err)
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	if !h.insertEvent(ctx, w, tx, outbox.EventAppointmentCreated, appt) {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.writeDetail(w, r, appt.ID, http.StatusCreated)
}

func (h *AgendaHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	appt, ok := h.decodeAppointment(w, r)
	if !ok {
		return
	}
	if appt.ID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if !h.validateCatalogScope(ctx, w, appt) {
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := h.repo.GetForUpdate(ctx, tx, appt.ID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !current.Active {
		http.Error(w, "appointment is cancelled", http.StatusConflict)
		return
	}

	if err := h.repo.Update(ctx, tx, &appt); err != nil {
		if storage.IsForeignKeyViolation(err) {
			http.Error(w, "unknown catalog reference", http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("appointment update failed", "err", err, "appointment_id", appt.ID)
		http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		return
	}

	if !h.insertEvent(ctx, w, tx, outbox.EventAppointmentUpdated, appt) {
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	h.writeDetail(w, r, appt.ID, http.StatusOK)
}

// Cancel flips the appointment inactive and stamps the cancellation time.
// Cancelling an already cancelled appointment answers 409, not 404: the row
// exists, it just cannot transition again.
func (h *AgendaHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := h.repo.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !current.Active {
		http.Error(w, "appointment already cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, req.AppointmentID)
	if err != nil {
		h.logger.Error("appointment cancel failed", "err", err, "appointment_id", req.AppointmentID)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id": req.AppointmentID,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   req.AppointmentID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cancelAppointmentResponse{
		AppointmentID: req.AppointmentID,
		Status:        "cancelled",
		CancelledAt:   cancelledAt.UTC().Format(time.RFC3339),
	})
}

func (h *AgendaHandler) decodeAppointment(w http.ResponseWriter, r *http.Request) (model.Appointment, bool) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return model.Appointment{}, false
	}

	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.SpecialtyID = strings.TrimSpace(req.SpecialtyID)
	req.ProcedureID = strings.TrimSpace(req.ProcedureID)
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)

	if req.SpecialtyID == "" || req.ProcedureID == "" || req.ProfessionalID == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return model.Appointment{}, false
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return model.Appointment{}, false
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return model.Appointment{}, false
	}
	if !endTime.After(startTime) {
		http.Error(w, "end_time must be after start_time", http.StatusBadRequest)
		return model.Appointment{}, false
	}

	return model.Appointment{
		ID:             req.AppointmentID,
		SpecialtyID:    req.SpecialtyID,
		ProcedureID:    req.ProcedureID,
		ProfessionalID: req.ProfessionalID,
		StartTime:      startTime.UTC(),
		EndTime:        endTime.UTC(),
		Description:    strings.TrimSpace(req.Description),
		Transport:      req.Transport,
		Active:         true,
	}, true
}

// validateCatalogScope rejects procedure or professional ids that do not
// belong to the chosen specialty before touching the appointments table.
func (h *AgendaHandler) validateCatalogScope(ctx context.Context, w http.ResponseWriter, appt model.Appointment) bool {
	procedures, err := h.catalog.ProceduresBySpecialty(ctx, appt.SpecialtyID)
	if err != nil {
		h.logger.Error("catalog lookup failed", "err", err)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return false
	}
	if !containsProcedure(procedures, appt.ProcedureID) {
		http.Error(w, "procedure does not belong to specialty", http.StatusUnprocessableEntity)
		return false
	}

	professionals, err := h.catalog.ProfessionalsBySpecialty(ctx, appt.SpecialtyID)
	if err != nil {
		h.logger.Error("catalog lookup failed", "err", err)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return false
	}
	if !containsProfessional(professionals, appt.ProfessionalID) {
		http.Error(w, "professional does not belong to specialty", http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (h *AgendaHandler) insertEvent(ctx context.Context, w http.ResponseWriter, tx pgx.Tx, eventType string, appt model.Appointment) bool {
	evtPayload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"specialty_id":    appt.SpecialtyID,
		"procedure_id":    appt.ProcedureID,
		"professional_id": appt.ProfessionalID,
		"start_time":      appt.StartTime.Format(time.RFC3339),
		"end_time":        appt.EndTime.Format(time.RFC3339),
		"transport":       appt.Transport,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return false
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       evtPayload,
	}); err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *AgendaHandler) writeDetail(w http.ResponseWriter, r *http.Request, id string, status int) {
	detail, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("appointment reload failed", "err", err, "appointment_id", id)
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, toAppointmentItem(detail))
}

func toAppointmentItem(d storage.AppointmentDetail) appointmentItem {
	a := d.Appointment
	item := appointmentItem{
		AppointmentID: a.ID,
		StartTime:     a.StartTime.UTC().Format(time.RFC3339),
		EndTime:       a.EndTime.UTC().Format(time.RFC3339),
		Description:   a.Description,
		Transport:     a.Transport,
		Active:        a.Active,
		Specialty:     specialtyItem{SpecialtyID: a.SpecialtyID, Name: d.SpecialtyName},
		Procedure:     procedureItem{ProcedureID: a.ProcedureID, Name: d.ProcedureName, SpecialtyID: a.SpecialtyID},
		Professional:  professionalItem{ProfessionalID: a.ProfessionalID, Name: d.ProfessionalName, SpecialtyID: a.SpecialtyID},
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func containsProcedure(items []model.Procedure, id string) bool {
	for _, p := range items {
		if p.ID == id {
			return true
		}
	}
	return false
}

func containsProfessional(items []model.Professional, id string) bool {
	for _, p := range items {
		if p.ID == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
