package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

// ErrConflictingOperation means a mutation was requested for an appointment
// that already has one in flight. Callers retry after the current operation
// settles; requests are never queued.
var ErrConflictingOperation = errors.New("conflicting operation in flight for appointment")

// ErrUnknownAppointment means the target id is not in the local set.
var ErrUnknownAppointment = errors.New("appointment not in local set")

// SyncError wraps a failed remote call. By the time the caller sees it, the
// local set has already been rolled back to the pre-mutation snapshot.
type SyncError struct {
	Op            string
	AppointmentID string
	Err           error
}

func (e *SyncError) Error() string {
	if e.AppointmentID == "" {
		return fmt.Sprintf("sync %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("sync %s failed for appointment %s: %v", e.Op, e.AppointmentID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// RemoteStore is the authoritative appointment store.
type RemoteStore interface {
	ListAppointments(ctx context.Context) ([]model.Appointment, error)
	CreateAppointment(ctx context.Context, d model.Draft) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, d model.Draft) (model.Appointment, error)
	CancelAppointment(ctx context.Context, id string) (time.Time, error)
}

// Coordinator owns the local appointment set and reconciles it against the
// remote store. Updates and cancels apply optimistically so the calendar
// reflects the change immediately; on remote failure the pre-call snapshot is
// restored before the error surfaces. Creates wait for the server-assigned
// id. One mutation per appointment id may be in flight at a time.
type Coordinator struct {
	store  RemoteStore
	logger *slog.Logger

	mu       sync.Mutex
	appts    []model.Appointment // encounter order, preserved across mutations
	inflight map[string]string   // appointment id -> op name
}

func NewCoordinator(store RemoteStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		logger:   logger,
		inflight: make(map[string]string),
	}
}

// Refresh replaces the local set with the store's current state.
func (c *Coordinator) Refresh(ctx context.Context) error {
	appts, err := c.store.ListAppointments(ctx)
	if err != nil {
		return &SyncError{Op: "refresh", Err: err}
	}
	c.mu.Lock()
	c.appts = appts
	c.mu.Unlock()
	return nil
}

// Appointments returns a copy of the local set in encounter order.
func (c *Coordinator) Appointments() []model.Appointment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Appointment, len(c.appts))
	copy(out, c.appts)
	return out
}

// Get returns the local copy of one appointment.
func (c *Coordinator) Get(id string) (model.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.appts[i], true
	}
	return model.Appointment{}, false
}

// Create sends a new appointment to the store and inserts the canonical
// record it returns. There is no optimistic insert: without a server-assigned
// id there is nothing coherent to show or roll back.
func (c *Coordinator) Create(ctx context.Context, d model.Draft) (model.Appointment, error) {
	created, err := c.store.CreateAppointment(ctx, d)
	if err != nil {
		return model.Appointment{}, &SyncError{Op: "create", Err: err}
	}
	c.mu.Lock()
	c.appts = append(c.appts, created)
	c.mu.Unlock()
	return created, nil
}

// Update applies the draft to the local record immediately, then issues the
// remote call. On failure the snapshot is restored; on success the local
// record is replaced by the canonical one the store returns.
func (c *Coordinator) Update(ctx context.Context, id string, d model.Draft) (model.Appointment, error) {
	c.mu.Lock()
	if op, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return model.Appointment{}, fmt.Errorf("%s: %w", op, ErrConflictingOperation)
	}
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return model.Appointment{}, ErrUnknownAppointment
	}
	snapshot := c.appts[i]
	c.appts[i] = applyDraft(snapshot, d)
	c.inflight[id] = "update"
	c.mu.Unlock()

	d.ID = id
	canonical, err := c.store.UpdateAppointment(ctx, d)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
	i = c.indexOf(id)
	if err != nil {
		if i >= 0 {
			c.appts[i] = snapshot
		}
		return model.Appointment{}, &SyncError{Op: "update", AppointmentID: id, Err: err}
	}
	if i >= 0 {
		c.appts[i] = canonical
	}
	return canonical, nil
}

// Cancel marks the local record inactive immediately, then issues the remote
// cancel. Rollback restores the pre-call snapshot on failure.
func (c *Coordinator) Cancel(ctx context.Context, id string) error {
	c.mu.Lock()
	if op, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrConflictingOperation)
	}
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return ErrUnknownAppointment
	}
	snapshot := c.appts[i]
	c.appts[i].Active = false
	c.inflight[id] = "cancel"
	c.mu.Unlock()

	cancelledAt, err := c.store.CancelAppointment(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
	i = c.indexOf(id)
	if err != nil {
		if i >= 0 {
			c.appts[i] = snapshot
		}
		return &SyncError{Op: "cancel", AppointmentID: id, Err: err}
	}
	if i >= 0 {
		c.appts[i].Active = false
		c.appts[i].CancelledAt = &cancelledAt
	}
	return nil
}

// indexOf must be called with c.mu held.
func (c *Coordinator) indexOf(id string) int {
	for i := range c.appts {
		if c.appts[i].ID == id {
			return i
		}
	}
	return -1
}

// applyDraft overlays draft fields on a local record. Reference names are
// kept only when the id is unchanged; a changed reference shows as id-only
// until the canonical record arrives.
func applyDraft(a model.Appointment, d model.Draft) model.Appointment {
	a.Start = d.Start
	a.End = d.End
	a.Description = d.Description
	a.Transport = d.Transport
	if a.Specialty.ID != d.SpecialtyID {
		a.Specialty = model.Specialty{ID: d.SpecialtyID}
	}
	if a.Procedure.ID != d.ProcedureID {
		a.Procedure = model.Procedure{ID: d.ProcedureID, SpecialtyID: d.SpecialtyID}
	}
	if a.Professional.ID != d.ProfessionalID {
		a.Professional = model.Professional{ID: d.ProfessionalID, SpecialtyID: d.SpecialtyID}
	}
	return a
}
