package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/cascade"
	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

// MinimumDuration is the repair distance: whenever an edit would leave the
// end at or before the start, the end advances to start + MinimumDuration
// instead of the edit being rejected.
const MinimumDuration = 30 * time.Minute

// ErrIncompleteAppointment means a save was attempted before specialty,
// procedure and professional were all selected. The draft is left untouched
// so the user can finish it.
var ErrIncompleteAppointment = errors.New("appointment draft is missing required selections")

// ErrNotEditing means an edit intent arrived while no draft was open.
var ErrNotEditing = errors.New("no appointment draft open")

// ErrCancellationNotArmed means a cancellation was confirmed without the
// preceding request step.
var ErrCancellationNotArmed = errors.New("cancellation has not been requested")

// ErrNotPersisted means a cancellation was requested for a draft that was
// never saved; there is no store record to cancel.
var ErrNotPersisted = errors.New("appointment has not been created yet")

type State int

const (
	Closed State = iota
	Editing
	Saving
	Cancelling
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Editing:
		return "editing"
	case Saving:
		return "saving"
	case Cancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Committer receives the session's commit and cancel requests.
type Committer interface {
	Create(ctx context.Context, d model.Draft) (model.Appointment, error)
	Update(ctx context.Context, id string, d model.Draft) (model.Appointment, error)
	Cancel(ctx context.Context, id string) error
}

// Session drives one appointment draft from open to commit or discard. The
// lock is dropped around remote calls, so the session stays responsive while
// a save is in flight; a close during that window is honored and the
// eventual result is applied to the closed session (failures become a log
// notification instead of reopening the editor).
type Session struct {
	committer Committer
	resolver  *cascade.Resolver
	logger    *slog.Logger

	mu             sync.Mutex
	state          State
	draft          model.Draft
	confirmPending bool
}

func NewSession(committer Committer, resolver *cascade.Resolver, logger *slog.Logger) *Session {
	return &Session{committer: committer, resolver: resolver, logger: logger}
}

// Open starts editing. With an existing appointment the draft is a copy of
// it and the cascade is hydrated to its selections; with nil the draft is an
// empty shell for creation. Either way the cascade starts from a clean chain,
// so selections from an earlier draft in the same session never carry over.
func (s *Session) Open(ctx context.Context, existing *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Closed {
		return errors.New("a draft is already open")
	}
	s.resolver.Reset()

	if existing == nil {
		s.draft = model.Draft{}
		s.state = Editing
		s.confirmPending = false
		return nil
	}

	draft := model.DraftOf(*existing)
	if err := s.hydrate(ctx, draft); err != nil {
		// A failed open leaves the session Closed and the cascade empty.
		s.resolver.Reset()
		return err
	}
	s.draft = draft
	s.state = Editing
	s.confirmPending = false
	return nil
}

func (s *Session) hydrate(ctx context.Context, draft model.Draft) error {
	if draft.SpecialtyID == "" {
		return nil
	}
	if err := s.resolver.SelectSpecialty(ctx, draft.SpecialtyID); err != nil {
		return err
	}
	if draft.ProcedureID != "" {
		if err := s.resolver.SelectProcedure(draft.ProcedureID); err != nil {
			return err
		}
	}
	if draft.ProfessionalID != "" {
		if err := s.resolver.SelectProfessional(draft.ProfessionalID); err != nil {
			return err
		}
	}
	return nil
}

// SetStart moves the start instant. If the end no longer follows it, the end
// is pushed to start + MinimumDuration.
func (s *Session) SetStart(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	s.draft.Start = t
	if !s.draft.End.After(t) {
		s.draft.End = t.Add(MinimumDuration)
	}
	return nil
}

// SetEnd moves the end instant. An end at or before the start is advanced to
// start + MinimumDuration rather than rejected.
func (s *Session) SetEnd(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if !t.After(s.draft.Start) {
		s.draft.End = s.draft.Start.Add(MinimumDuration)
		return nil
	}
	s.draft.End = t
	return nil
}

// SelectSpecialty re-scopes the cascade and syncs the draft's reference ids
// with whatever selections survived the scope change.
func (s *Session) SelectSpecialty(ctx context.Context, specialtyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if err := s.resolver.SelectSpecialty(ctx, specialtyID); err != nil {
		return err
	}
	s.draft.SpecialtyID, s.draft.ProcedureID, s.draft.ProfessionalID = s.resolver.Selection()
	return nil
}

func (s *Session) SelectProcedure(procedureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if err := s.resolver.SelectProcedure(procedureID); err != nil {
		return err
	}
	s.draft.ProcedureID = procedureID
	return nil
}

func (s *Session) SelectProfessional(professionalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if err := s.resolver.SelectProfessional(professionalID); err != nil {
		return err
	}
	s.draft.ProfessionalID = professionalID
	return nil
}

func (s *Session) SetDescription(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	s.draft.Description = text
	return nil
}

func (s *Session) SetTransport(needed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	s.draft.Transport = needed
	return nil
}

// Save validates the draft and hands it to the committer. An incomplete
// selection chain fails with ErrIncompleteAppointment and leaves the draft
// unchanged in Editing.
func (s *Session) Save(ctx context.Context) (model.Appointment, error) {
	s.mu.Lock()
	if s.state != Editing {
		s.mu.Unlock()
		return model.Appointment{}, ErrNotEditing
	}
	if s.resolver.State() != cascade.FullySelected {
		s.mu.Unlock()
		return model.Appointment{}, ErrIncompleteAppointment
	}
	if s.draft.Start.IsZero() {
		s.mu.Unlock()
		return model.Appointment{}, ErrIncompleteAppointment
	}
	if !s.draft.End.After(s.draft.Start) {
		// SetStart/SetEnd keep this invariant; a zero end means times were
		// never touched on a fresh draft.
		s.mu.Unlock()
		return model.Appointment{}, ErrIncompleteAppointment
	}

	s.draft.SpecialtyID, s.draft.ProcedureID, s.draft.ProfessionalID = s.resolver.Selection()
	snapshot := s.draft
	s.state = Saving
	s.mu.Unlock()

	var saved model.Appointment
	var err error
	if snapshot.ID == "" {
		saved, err = s.committer.Create(ctx, snapshot)
	} else {
		saved, err = s.committer.Update(ctx, snapshot.ID, snapshot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Saving {
		// The session was closed while the call was in flight. The result
		// applies to the snapshot; a failure is a notification, not a reopen.
		if err != nil {
			s.logger.Warn("save settled after session closed", "appointment_id", snapshot.ID, "err", err)
		}
		return saved, err
	}
	if err != nil {
		s.state = Editing
		return model.Appointment{}, err
	}
	s.state = Closed
	s.draft = model.Draft{}
	return saved, nil
}

// CancelEdit discards the draft unconditionally.
func (s *Session) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Closed
	s.draft = model.Draft{}
	s.confirmPending = false
}

// RequestCancellation arms cancellation of the appointment itself (not the
// edit session). Nothing is sent until ConfirmCancellation.
func (s *Session) RequestCancellation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	if s.draft.ID == "" {
		return ErrNotPersisted
	}
	s.confirmPending = true
	return nil
}

// DeclineCancellation disarms a pending cancellation.
func (s *Session) DeclineCancellation() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Editing {
		return ErrNotEditing
	}
	s.confirmPending = false
	return nil
}

// ConfirmCancellation issues the cancel through the committer and closes the
// session on success. On failure the session stays in Editing so the user
// can retry or keep the appointment.
func (s *Session) ConfirmCancellation(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Editing {
		s.mu.Unlock()
		return ErrNotEditing
	}
	if !s.confirmPending {
		s.mu.Unlock()
		return ErrCancellationNotArmed
	}
	id := s.draft.ID
	s.state = Cancelling
	s.confirmPending = false
	s.mu.Unlock()

	err := s.committer.Cancel(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Cancelling {
		if err != nil {
			s.logger.Warn("cancel settled after session closed", "appointment_id", id, "err", err)
		}
		return err
	}
	if err != nil {
		s.state = Editing
		return err
	}
	s.state = Closed
	s.draft = model.Draft{}
	return nil
}

// Snapshot reports the current draft and lifecycle state for the UI.
func (s *Session) Snapshot() (State, model.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.draft, s.confirmPending
}

// Title projects the display title from the resolver's current selections.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolver.Title()
}
