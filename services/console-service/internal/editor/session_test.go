package editor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/cascade"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

type fakeCatalog struct{}

func (fakeCatalog) Specialties(ctx context.Context) ([]model.Specialty, error) {
	return []model.Specialty{{ID: "card", Name: "Cardiologia"}}, nil
}

func (fakeCatalog) ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error) {
	return []model.Procedure{{ID: "consulta", Name: "Consulta", SpecialtyID: specialtyID}}, nil
}

func (fakeCatalog) ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error) {
	return []model.Professional{{ID: "ana", Name: "Dra. Ana", SpecialtyID: specialtyID}}, nil
}

type fakeCommitter struct {
	created   []model.Draft
	updated   []model.Draft
	cancelled []string
	failWith  error
}

func (f *fakeCommitter) Create(ctx context.Context, d model.Draft) (model.Appointment, error) {
	if f.failWith != nil {
		return model.Appointment{}, f.failWith
	}
	f.created = append(f.created, d)
	return model.Appointment{
		ID:           "srv-1",
		Start:        d.Start,
		End:          d.End,
		Specialty:    model.Specialty{ID: d.SpecialtyID, Name: "Cardiologia"},
		Procedure:    model.Procedure{ID: d.ProcedureID, Name: "Consulta", SpecialtyID: d.SpecialtyID},
		Professional: model.Professional{ID: d.ProfessionalID, Name: "Dra. Ana", SpecialtyID: d.SpecialtyID},
		Description:  d.Description,
		Transport:    d.Transport,
		Active:       true,
	}, nil
}

func (f *fakeCommitter) Update(ctx context.Context, id string, d model.Draft) (model.Appointment, error) {
	if f.failWith != nil {
		return model.Appointment{}, f.failWith
	}
	f.updated = append(f.updated, d)
	return model.Appointment{ID: id, Start: d.Start, End: d.End, Active: true}, nil
}

func (f *fakeCommitter) Cancel(ctx context.Context, id string) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newTestSession(committer Committer) *Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSession(committer, cascade.NewResolver(fakeCatalog{}), logger)
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 5, 8, hour, minute, 0, 0, time.UTC)
}

func TestSession_SetStartRepairsEnd(t *testing.T) {
	s := newTestSession(&fakeCommitter{})
	ctx := context.Background()
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.SetStart(at(9, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}
	_, draft, _ := s.Snapshot()
	if !draft.End.Equal(at(9, 30)) {
		t.Fatalf("end after first SetStart = %s, want 09:30", draft.End.Format(time.RFC3339))
	}

	// Moving the start past the end drags the end forward again.
	if err := s.SetEnd(at(9, 45)); err != nil {
		t.Fatalf("SetEnd: %v", err)
	}
	if err := s.SetStart(at(10, 0)); err != nil {
		t.Fatalf("second SetStart: %v", err)
	}
	_, draft, _ = s.Snapshot()
	if !draft.End.Equal(at(10, 30)) {
		t.Fatalf("end after repair = %s, want 10:30", draft.End.Format(time.RFC3339))
	}
}

func TestSession_SetEndBeforeStartRepaired(t *testing.T) {
	s := newTestSession(&fakeCommitter{})
	if err := s.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetStart(at(10, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}

	if err := s.SetEnd(at(9, 30)); err != nil {
		t.Fatalf("SetEnd: %v", err)
	}
	_, draft, _ := s.Snapshot()
	if !draft.Start.Equal(at(10, 0)) {
		t.Fatalf("start moved to %s", draft.Start.Format(time.RFC3339))
	}
	if !draft.End.Equal(at(10, 30)) {
		t.Fatalf("end = %s, want 10:30", draft.End.Format(time.RFC3339))
	}

	// An end equal to the start is repaired the same way.
	if err := s.SetEnd(at(10, 0)); err != nil {
		t.Fatalf("SetEnd equal: %v", err)
	}
	_, draft, _ = s.Snapshot()
	if !draft.End.Equal(at(10, 30)) {
		t.Fatalf("end after equal repair = %s, want 10:30", draft.End.Format(time.RFC3339))
	}
}

func TestSession_SaveIncompleteLeavesDraft(t *testing.T) {
	committer := &fakeCommitter{}
	s := newTestSession(committer)
	ctx := context.Background()
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SetStart(at(9, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}
	if err := s.SetDescription("acompanhamento"); err != nil {
		t.Fatalf("SetDescription: %v", err)
	}

	_, err := s.Save(ctx)
	if !errors.Is(err, ErrIncompleteAppointment) {
		t.Fatalf("expected ErrIncompleteAppointment, got %v", err)
	}
	if len(committer.created) != 0 {
		t.Fatalf("incomplete save must not reach the committer")
	}

	state, draft, _ := s.Snapshot()
	if state != Editing {
		t.Fatalf("state = %v after failed save, want Editing", state)
	}
	if draft.Description != "acompanhamento" || !draft.Start.Equal(at(9, 0)) {
		t.Fatalf("draft changed by failed save: %+v", draft)
	}
}

func TestSession_SaveCreate(t *testing.T) {
	committer := &fakeCommitter{}
	s := newTestSession(committer)
	ctx := context.Background()
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if err := s.SelectProcedure("consulta"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := s.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}
	if err := s.SetStart(at(9, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}
	if err := s.SetTransport(true); err != nil {
		t.Fatalf("SetTransport: %v", err)
	}

	if got := s.Title(); got != "Consulta com Cardiologia - Dra. Ana" {
		t.Fatalf("title = %q", got)
	}

	saved, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID != "srv-1" || !saved.Transport {
		t.Fatalf("saved = %+v", saved)
	}
	if len(committer.created) != 1 || len(committer.updated) != 0 {
		t.Fatalf("expected one create, got %d creates %d updates", len(committer.created), len(committer.updated))
	}

	state, _, _ := s.Snapshot()
	if state != Closed {
		t.Fatalf("state = %v after save, want Closed", state)
	}
}

func TestSession_SaveUpdateExisting(t *testing.T) {
	committer := &fakeCommitter{}
	s := newTestSession(committer)
	ctx := context.Background()

	existing := &model.Appointment{
		ID:           "appt-7",
		Start:        at(9, 0),
		End:          at(9, 30),
		Specialty:    model.Specialty{ID: "card", Name: "Cardiologia"},
		Procedure:    model.Procedure{ID: "consulta", Name: "Consulta", SpecialtyID: "card"},
		Professional: model.Professional{ID: "ana", Name: "Dra. Ana", SpecialtyID: "card"},
		Active:       true,
	}
	if err := s.Open(ctx, existing); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := s.Title(); got != "Consulta com Cardiologia - Dra. Ana" {
		t.Fatalf("hydrated title = %q", got)
	}

	if err := s.SetStart(at(11, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(committer.updated) != 1 || len(committer.created) != 0 {
		t.Fatalf("expected one update, got %d updates %d creates", len(committer.updated), len(committer.created))
	}
	if !committer.updated[0].Start.Equal(at(11, 0)) {
		t.Fatalf("update carried start %s", committer.updated[0].Start.Format(time.RFC3339))
	}
}

func TestSession_SaveFailureReturnsToEditing(t *testing.T) {
	committer := &fakeCommitter{failWith: errors.New("store down")}
	s := newTestSession(committer)
	ctx := context.Background()
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if err := s.SelectProcedure("consulta"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := s.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}
	if err := s.SetStart(at(9, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}

	if _, err := s.Save(ctx); err == nil {
		t.Fatalf("expected save failure")
	}
	state, draft, _ := s.Snapshot()
	if state != Editing {
		t.Fatalf("state = %v after failed save, want Editing", state)
	}
	if !draft.Start.Equal(at(9, 0)) {
		t.Fatalf("draft lost after failed save: %+v", draft)
	}
}

func TestSession_CancellationFlow(t *testing.T) {
	committer := &fakeCommitter{}
	s := newTestSession(committer)
	ctx := context.Background()

	existing := &model.Appointment{
		ID:           "appt-7",
		Start:        at(9, 0),
		End:          at(9, 30),
		Specialty:    model.Specialty{ID: "card", Name: "Cardiologia"},
		Procedure:    model.Procedure{ID: "consulta", Name: "Consulta", SpecialtyID: "card"},
		Professional: model.Professional{ID: "ana", Name: "Dra. Ana", SpecialtyID: "card"},
		Active:       true,
	}
	if err := s.Open(ctx, existing); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Confirming without the request step is refused.
	if err := s.ConfirmCancellation(ctx); !errors.Is(err, ErrCancellationNotArmed) {
		t.Fatalf("expected ErrCancellationNotArmed, got %v", err)
	}

	if err := s.RequestCancellation(); err != nil {
		t.Fatalf("RequestCancellation: %v", err)
	}
	if err := s.DeclineCancellation(); err != nil {
		t.Fatalf("DeclineCancellation: %v", err)
	}
	if err := s.ConfirmCancellation(ctx); !errors.Is(err, ErrCancellationNotArmed) {
		t.Fatalf("declined cancellation must disarm, got %v", err)
	}
	if len(committer.cancelled) != 0 {
		t.Fatalf("nothing should have been cancelled yet")
	}

	if err := s.RequestCancellation(); err != nil {
		t.Fatalf("second RequestCancellation: %v", err)
	}
	if err := s.ConfirmCancellation(ctx); err != nil {
		t.Fatalf("ConfirmCancellation: %v", err)
	}
	if len(committer.cancelled) != 1 || committer.cancelled[0] != "appt-7" {
		t.Fatalf("cancelled = %v", committer.cancelled)
	}
	state, _, _ := s.Snapshot()
	if state != Closed {
		t.Fatalf("state = %v after cancellation, want Closed", state)
	}
}

func TestSession_ReopenStartsFromEmptySelections(t *testing.T) {
	committer := &fakeCommitter{}
	s := newTestSession(committer)
	ctx := context.Background()

	existing := &model.Appointment{
		ID:           "appt-7",
		Start:        at(9, 0),
		End:          at(9, 30),
		Specialty:    model.Specialty{ID: "card", Name: "Cardiologia"},
		Procedure:    model.Procedure{ID: "consulta", Name: "Consulta", SpecialtyID: "card"},
		Professional: model.Professional{ID: "ana", Name: "Dra. Ana", SpecialtyID: "card"},
		Active:       true,
	}
	if err := s.Open(ctx, existing); err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	s.CancelEdit()

	// A fresh creation draft must not inherit the previous edit's selections.
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open new: %v", err)
	}
	if got := s.Title(); got != cascade.PlaceholderTitle {
		t.Fatalf("title on fresh draft = %q", got)
	}
	if err := s.SetStart(at(14, 0)); err != nil {
		t.Fatalf("SetStart: %v", err)
	}
	if _, err := s.Save(ctx); !errors.Is(err, ErrIncompleteAppointment) {
		t.Fatalf("expected ErrIncompleteAppointment, got %v", err)
	}
	if len(committer.created) != 0 || len(committer.updated) != 0 {
		t.Fatalf("empty draft reached the committer: %d creates %d updates", len(committer.created), len(committer.updated))
	}
}

func TestSession_OpenHydrationFailureIsSideEffectFree(t *testing.T) {
	s := newTestSession(&fakeCommitter{})
	ctx := context.Background()

	stale := &model.Appointment{
		ID:           "appt-9",
		Start:        at(9, 0),
		End:          at(9, 30),
		Specialty:    model.Specialty{ID: "card", Name: "Cardiologia"},
		Procedure:    model.Procedure{ID: "consulta", Name: "Consulta", SpecialtyID: "card"},
		Professional: model.Professional{ID: "bruno", Name: "Bruno", SpecialtyID: "card"},
		Active:       true,
	}
	if err := s.Open(ctx, stale); !errors.Is(err, cascade.ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	state, _, _ := s.Snapshot()
	if state != Closed {
		t.Fatalf("state = %v after failed open, want Closed", state)
	}

	// The partial hydration must not leave a specialty scope behind.
	if err := s.Open(ctx, nil); err != nil {
		t.Fatalf("Open new: %v", err)
	}
	if err := s.SelectProfessional("ana"); !errors.Is(err, cascade.ErrNoSpecialty) {
		t.Fatalf("expected ErrNoSpecialty, got %v", err)
	}
}

func TestSession_CancellationRequiresPersistedAppointment(t *testing.T) {
	s := newTestSession(&fakeCommitter{})
	if err := s.Open(context.Background(), nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RequestCancellation(); !errors.Is(err, ErrNotPersisted) {
		t.Fatalf("expected ErrNotPersisted, got %v", err)
	}
}

func TestSession_IntentsRequireOpenDraft(t *testing.T) {
	s := newTestSession(&fakeCommitter{})
	if err := s.SetStart(at(9, 0)); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
	if _, err := s.Save(context.Background()); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing from Save, got %v", err)
	}
}
