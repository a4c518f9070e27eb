package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/calendar"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/cascade"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/editor"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/syncer"
)

// sessionIdleTTL is how long a closed session entry may sit untouched before
// it is dropped from the per-staff map. Sessions with an open draft are never
// evicted.
const sessionIdleTTL = 30 * time.Minute

// ConsoleHandler is the thin surface between the staff UI and the engine.
// The UI sends intents; the engine owns every decision. One editing session
// exists per staff member, created lazily on first use.
type ConsoleHandler struct {
	coordinator *syncer.Coordinator
	catalog     cascade.Catalog
	logger      *slog.Logger
	cap         int
	idleTTL     time.Duration

	mu       sync.Mutex
	sessions map[string]*staffSession
}

type staffSession struct {
	session  *editor.Session
	lastSeen time.Time
}

func NewConsoleHandler(coordinator *syncer.Coordinator, catalog cascade.Catalog, logger *slog.Logger, indicatorCap int) *ConsoleHandler {
	if indicatorCap <= 0 {
		indicatorCap = calendar.DefaultCap
	}
	return &ConsoleHandler{
		coordinator: coordinator,
		catalog:     catalog,
		logger:      logger,
		cap:         indicatorCap,
		idleTTL:     sessionIdleTTL,
		sessions:    make(map[string]*staffSession),
	}
}

func (h *ConsoleHandler) session(staffID string) *editor.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, e := range h.sessions {
		if id == staffID || now.Sub(e.lastSeen) < h.idleTTL {
			continue
		}
		if state, _, _ := e.session.Snapshot(); state == editor.Closed {
			delete(h.sessions, id)
		}
	}

	e, ok := h.sessions[staffID]
	if !ok {
		e = &staffSession{session: editor.NewSession(h.coordinator, cascade.NewResolver(h.catalog), h.logger)}
		h.sessions[staffID] = e
	}
	e.lastSeen = now
	return e.session
}

func staffIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Staff-Id"))
}

type dayEntryItem struct {
	Key   string `json:"key"`
	Color string `json:"color"`
	Hex   string `json:"hex"`
}

type dayIndicatorItem struct {
	Entries  []dayEntryItem `json:"entries"`
	HasMore  bool           `json:"has_more"`
	Selected bool           `json:"selected,omitempty"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	Title         string `json:"title"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Specialty     string `json:"specialty"`
	Procedure     string `json:"procedure"`
	Professional  string `json:"professional"`
	Description   string `json:"description"`
	Transport     bool   `json:"transport"`
	Active        bool   `json:"active"`
}

type draftView struct {
	State          string `json:"state"`
	Title          string `json:"title"`
	AppointmentID  string `json:"appointment_id,omitempty"`
	StartTime      string `json:"start_time,omitempty"`
	EndTime        string `json:"end_time,omitempty"`
	SpecialtyID    string `json:"specialty_id,omitempty"`
	ProcedureID    string `json:"procedure_id,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
	Description    string `json:"description"`
	Transport      bool   `json:"transport"`
	ConfirmPending bool   `json:"confirm_pending"`
}

// Calendar serves the per-day indicator map. A selected day that has no
// appointments still appears in the reply as an empty, selected entry; that
// overlay belongs here, not in the aggregation.
func (h *ConsoleHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	indicatorCap := h.cap
	if raw := strings.TrimSpace(r.URL.Query().Get("cap")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 10 {
			indicatorCap = n
		}
	}

	days := calendar.Aggregate(h.coordinator.Appointments(), indicatorCap)
	items := make(map[string]dayIndicatorItem, len(days))
	for day, ind := range days {
		item := dayIndicatorItem{HasMore: ind.HasMore, Entries: make([]dayEntryItem, 0, len(ind.Entries))}
		for _, e := range ind.Entries {
			item.Entries = append(item.Entries, dayEntryItem{Key: e.Key, Color: e.Color.CSS(), Hex: e.Color.Hex()})
		}
		items[day] = item
	}

	selected := strings.TrimSpace(r.URL.Query().Get("selected"))
	if selected != "" {
		if _, err := time.Parse(calendar.DayKeyLayout, selected); err != nil {
			http.Error(w, "invalid selected day", http.StatusBadRequest)
			return
		}
		item := items[selected]
		if item.Entries == nil {
			item.Entries = []dayEntryItem{}
		}
		item.Selected = true
		items[selected] = item
	}

	writeJSON(w, http.StatusOK, map[string]any{"days": items})
}

// Day lists the appointments of one calendar day in encounter order.
func (h *ConsoleHandler) Day(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := time.Parse(calendar.DayKeyLayout, day); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	appts := calendar.OnDay(h.coordinator.Appointments(), day)
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointmentItem(a))
	}
	writeJSON(w, http.StatusOK, items)
}

// Refresh re-pulls the local set from the store on demand.
func (h *ConsoleHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.coordinator.Refresh(r.Context()); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsoleHandler) SessionOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	var req struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)

	var existing *model.Appointment
	if req.AppointmentID != "" {
		a, ok := h.coordinator.Get(req.AppointmentID)
		if !ok {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		existing = &a
	}
	if err := h.session(staffID).Open(r.Context(), existing); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionStart(w http.ResponseWriter, r *http.Request) {
	h.sessionInstant(w, r, func(s *editor.Session, t time.Time) error { return s.SetStart(t) })
}

func (h *ConsoleHandler) SessionEnd(w http.ResponseWriter, r *http.Request) {
	h.sessionInstant(w, r, func(s *editor.Session, t time.Time) error { return s.SetEnd(t) })
}

func (h *ConsoleHandler) sessionInstant(w http.ResponseWriter, r *http.Request, apply func(*editor.Session, time.Time) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	var req struct {
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Time))
	if err != nil {
		http.Error(w, "time must be RFC 3339", http.StatusBadRequest)
		return
	}
	if err := apply(h.session(staffID), t); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionSpecialty(w http.ResponseWriter, r *http.Request) {
	h.sessionSelect(w, r, "specialty_id", func(s *editor.Session, r *http.Request, id string) error {
		return s.SelectSpecialty(r.Context(), id)
	})
}

func (h *ConsoleHandler) SessionProcedure(w http.ResponseWriter, r *http.Request) {
	h.sessionSelect(w, r, "procedure_id", func(s *editor.Session, _ *http.Request, id string) error {
		return s.SelectProcedure(id)
	})
}

func (h *ConsoleHandler) SessionProfessional(w http.ResponseWriter, r *http.Request) {
	h.sessionSelect(w, r, "professional_id", func(s *editor.Session, _ *http.Request, id string) error {
		return s.SelectProfessional(id)
	})
}

func (h *ConsoleHandler) sessionSelect(w http.ResponseWriter, r *http.Request, field string, apply func(*editor.Session, *http.Request, string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req[field])
	if id == "" {
		http.Error(w, field+" required", http.StatusBadRequest)
		return
	}
	if err := apply(h.session(staffID), r, id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionDescription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.session(staffID).SetDescription(req.Text); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionTransport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	var req struct {
		Needed bool `json:"needed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := h.session(staffID).SetTransport(req.Needed); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) SessionSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	saved, err := h.session(staffID).Save(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentItem(saved))
}

func (h *ConsoleHandler) SessionDiscard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	h.session(staffID).CancelEdit()
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsoleHandler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(s *editor.Session, _ *http.Request) error { return s.RequestCancellation() })
}

func (h *ConsoleHandler) CancelConfirm(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(s *editor.Session, r *http.Request) error { return s.ConfirmCancellation(r.Context()) })
}

func (h *ConsoleHandler) CancelDecline(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(s *editor.Session, _ *http.Request) error { return s.DeclineCancellation() })
}

func (h *ConsoleHandler) sessionAction(w http.ResponseWriter, r *http.Request, apply func(*editor.Session, *http.Request) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	staffID := staffIDFromHeader(r)
	if staffID == "" {
		http.Error(w, "missing X-Staff-Id", http.StatusBadRequest)
		return
	}
	if err := apply(h.session(staffID), r); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeSession(w, staffID)
}

func (h *ConsoleHandler) writeSession(w http.ResponseWriter, staffID string) {
	s := h.session(staffID)
	state, draft, confirmPending := s.Snapshot()
	view := draftView{
		State:          state.String(),
		Title:          s.Title(),
		AppointmentID:  draft.ID,
		SpecialtyID:    draft.SpecialtyID,
		ProcedureID:    draft.ProcedureID,
		ProfessionalID: draft.ProfessionalID,
		Description:    draft.Description,
		Transport:      draft.Transport,
		ConfirmPending: confirmPending,
	}
	if !draft.Start.IsZero() {
		view.StartTime = draft.Start.Format(time.RFC3339)
	}
	if !draft.End.IsZero() {
		view.EndTime = draft.End.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, view)
}

// writeEngineError translates engine error kinds into API statuses. Every one
// of these is recoverable; the body carries the operator-facing message.
func (h *ConsoleHandler) writeEngineError(w http.ResponseWriter, err error) {
	var syncErr *syncer.SyncError
	switch {
	case errors.Is(err, editor.ErrIncompleteAppointment):
		http.Error(w, "specialty, procedure, professional and times are required", http.StatusUnprocessableEntity)
	case errors.Is(err, cascade.ErrInvalidSelection), errors.Is(err, cascade.ErrNoSpecialty):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, syncer.ErrConflictingOperation):
		http.Error(w, "another change for this appointment is still in flight", http.StatusConflict)
	case errors.Is(err, syncer.ErrUnknownAppointment):
		http.Error(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, editor.ErrNotEditing), errors.Is(err, editor.ErrCancellationNotArmed), errors.Is(err, editor.ErrNotPersisted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &syncErr):
		h.logger.Warn("remote store call failed", "op", syncErr.Op, "appointment_id", syncErr.AppointmentID, "err", syncErr.Err)
		http.Error(w, "the agenda store rejected the change; your view was restored", http.StatusBadGateway)
	default:
		h.logger.Error("unexpected engine error", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	title := cascade.PlaceholderTitle
	if a.Procedure.Name != "" && a.Specialty.Name != "" && a.Professional.Name != "" {
		title = a.Procedure.Name + " com " + a.Specialty.Name + " - " + a.Professional.Name
	}
	return appointmentItem{
		AppointmentID: a.ID,
		Title:         title,
		StartTime:     a.Start.Format(time.RFC3339),
		EndTime:       a.End.Format(time.RFC3339),
		Specialty:     a.Specialty.Name,
		Procedure:     a.Procedure.Name,
		Professional:  a.Professional.Name,
		Description:   a.Description,
		Transport:     a.Transport,
		Active:        a.Active,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
