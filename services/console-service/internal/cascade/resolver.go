package cascade

import (
	"context"
	"errors"
	"fmt"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

// ErrInvalidSelection means a procedure or professional was chosen that is
// not in the scope of the current specialty. The UI should only offer scoped
// candidates, so hitting this usually means a stale picker.
var ErrInvalidSelection = errors.New("selection outside current specialty scope")

// ErrNoSpecialty means a downstream selection was attempted before any
// specialty was chosen.
var ErrNoSpecialty = errors.New("no specialty selected")

// PlaceholderTitle is shown while the three selections are incomplete.
const PlaceholderTitle = "Título gerado automaticamente"

// State is the resolver's position in the specialty → procedure/professional
// chain. Transitions only move forward on valid selections; changing the
// specialty resets the chain entirely.
type State int

const (
	NoneSelected State = iota
	SpecialtyOnly
	SpecialtyAndProcedure
	SpecialtyAndProfessional
	FullySelected
)

func (s State) String() string {
	switch s {
	case NoneSelected:
		return "none"
	case SpecialtyOnly:
		return "specialty"
	case SpecialtyAndProcedure:
		return "specialty+procedure"
	case SpecialtyAndProfessional:
		return "specialty+professional"
	case FullySelected:
		return "complete"
	default:
		return "unknown"
	}
}

// Catalog provides the reference data the resolver scopes selections against.
type Catalog interface {
	Specialties(ctx context.Context) ([]model.Specialty, error)
	ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error)
	ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error)
}

// Resolver holds the current selection chain for one edit session. It is the
// single authority on which procedures and professionals are eligible; there
// is no path that updates one selection without re-checking the others.
type Resolver struct {
	catalog Catalog

	specialties []model.Specialty

	specialty     *model.Specialty
	procedures    []model.Procedure
	professionals []model.Professional
	procedure     *model.Procedure
	professional  *model.Professional
}

func NewResolver(catalog Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Reset clears the selection chain and its scoped candidate sets. The cached
// global specialty list survives; it is not scoped to a selection.
func (r *Resolver) Reset() {
	r.specialty = nil
	r.procedures = nil
	r.professionals = nil
	r.procedure = nil
	r.professional = nil
}

// Specialties returns the global specialty list, fetching it on first use.
func (r *Resolver) Specialties(ctx context.Context) ([]model.Specialty, error) {
	if r.specialties == nil {
		list, err := r.catalog.Specialties(ctx)
		if err != nil {
			return nil, err
		}
		r.specialties = list
	}
	return r.specialties, nil
}

// SelectSpecialty scopes the candidate sets to the given specialty. A prior
// procedure or professional selection survives only if it is a member of the
// new scope; otherwise it is cleared. Both are always re-evaluated together.
func (r *Resolver) SelectSpecialty(ctx context.Context, specialtyID string) error {
	specialties, err := r.Specialties(ctx)
	if err != nil {
		return err
	}
	var chosen *model.Specialty
	for i := range specialties {
		if specialties[i].ID == specialtyID {
			chosen = &specialties[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("specialty %q: %w", specialtyID, ErrInvalidSelection)
	}

	procedures, err := r.catalog.ProceduresBySpecialty(ctx, specialtyID)
	if err != nil {
		return err
	}
	professionals, err := r.catalog.ProfessionalsBySpecialty(ctx, specialtyID)
	if err != nil {
		return err
	}

	r.specialty = chosen
	r.procedures = procedures
	r.professionals = professionals
	r.procedure = survivingProcedure(r.procedure, procedures)
	r.professional = survivingProfessional(r.professional, professionals)
	return nil
}

// SelectProcedure records a procedure choice. The candidate must belong to
// the currently scoped set.
func (r *Resolver) SelectProcedure(procedureID string) error {
	if r.specialty == nil {
		return ErrNoSpecialty
	}
	for i := range r.procedures {
		if r.procedures[i].ID == procedureID {
			r.procedure = &r.procedures[i]
			return nil
		}
	}
	return fmt.Errorf("procedure %q: %w", procedureID, ErrInvalidSelection)
}

// SelectProfessional records a professional choice. The candidate must belong
// to the currently scoped set.
func (r *Resolver) SelectProfessional(professionalID string) error {
	if r.specialty == nil {
		return ErrNoSpecialty
	}
	for i := range r.professionals {
		if r.professionals[i].ID == professionalID {
			r.professional = &r.professionals[i]
			return nil
		}
	}
	return fmt.Errorf("professional %q: %w", professionalID, ErrInvalidSelection)
}

func survivingProcedure(prev *model.Procedure, scope []model.Procedure) *model.Procedure {
	if prev == nil {
		return nil
	}
	for i := range scope {
		if scope[i].ID == prev.ID {
			return &scope[i]
		}
	}
	return nil
}

func survivingProfessional(prev *model.Professional, scope []model.Professional) *model.Professional {
	if prev == nil {
		return nil
	}
	for i := range scope {
		if scope[i].ID == prev.ID {
			return &scope[i]
		}
	}
	return nil
}

// State derives the chain position from the current selections.
func (r *Resolver) State() State {
	switch {
	case r.specialty == nil:
		return NoneSelected
	case r.procedure != nil && r.professional != nil:
		return FullySelected
	case r.procedure != nil:
		return SpecialtyAndProcedure
	case r.professional != nil:
		return SpecialtyAndProfessional
	default:
		return SpecialtyOnly
	}
}

// Title is a pure projection of the three current selections. With any of
// them missing it renders the placeholder rather than failing.
func (r *Resolver) Title() string {
	if r.State() != FullySelected {
		return PlaceholderTitle
	}
	return fmt.Sprintf("%s com %s - %s", r.procedure.Name, r.specialty.Name, r.professional.Name)
}

// Selection returns the ids of the current choices; empty strings for
// anything not yet selected.
func (r *Resolver) Selection() (specialtyID, procedureID, professionalID string) {
	if r.specialty != nil {
		specialtyID = r.specialty.ID
	}
	if r.procedure != nil {
		procedureID = r.procedure.ID
	}
	if r.professional != nil {
		professionalID = r.professional.ID
	}
	return specialtyID, procedureID, professionalID
}

// Procedures returns the procedure candidates scoped to the current specialty.
func (r *Resolver) Procedures() []model.Procedure { return r.procedures }

// Professionals returns the professional candidates scoped to the current specialty.
func (r *Resolver) Professionals() []model.Professional { return r.professionals }
