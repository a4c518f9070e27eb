package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/tapiocalabs/clinagenda/services/console-service/internal/model"
)

type fakeCatalog struct {
	specialties   []model.Specialty
	procedures    map[string][]model.Procedure
	professionals map[string][]model.Professional
	calls         int
}

func (f *fakeCatalog) Specialties(ctx context.Context) ([]model.Specialty, error) {
	f.calls++
	return f.specialties, nil
}

func (f *fakeCatalog) ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error) {
	return f.procedures[specialtyID], nil
}

func (f *fakeCatalog) ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error) {
	return f.professionals[specialtyID], nil
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		specialties: []model.Specialty{
			{ID: "card", Name: "Cardiologia"},
			{ID: "fisio", Name: "Fisioterapia"},
		},
		procedures: map[string][]model.Procedure{
			"card": {
				{ID: "consulta", Name: "Consulta", SpecialtyID: "card"},
				{ID: "eco", Name: "Ecocardiograma", SpecialtyID: "card"},
			},
			"fisio": {
				{ID: "consulta", Name: "Consulta", SpecialtyID: "fisio"},
				{ID: "rpg", Name: "RPG", SpecialtyID: "fisio"},
			},
		},
		professionals: map[string][]model.Professional{
			"card":  {{ID: "ana", Name: "Dra. Ana", SpecialtyID: "card"}},
			"fisio": {{ID: "bruno", Name: "Bruno", SpecialtyID: "fisio"}},
		},
	}
}

func TestResolver_SelectSpecialtyScopesCandidates(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	ctx := context.Background()

	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if got := len(r.Procedures()); got != 2 {
		t.Fatalf("expected 2 procedures in scope, got %d", got)
	}
	if got := len(r.Professionals()); got != 1 {
		t.Fatalf("expected 1 professional in scope, got %d", got)
	}
	if r.State() != SpecialtyOnly {
		t.Fatalf("state = %v, want SpecialtyOnly", r.State())
	}
}

func TestResolver_UnknownSpecialtyRejected(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	err := r.SelectSpecialty(context.Background(), "nope")
	if !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection, got %v", err)
	}
	if r.State() != NoneSelected {
		t.Fatalf("failed selection must not change state")
	}
}

func TestResolver_DownstreamBeforeSpecialty(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	if err := r.SelectProcedure("consulta"); !errors.Is(err, ErrNoSpecialty) {
		t.Fatalf("expected ErrNoSpecialty, got %v", err)
	}
	if err := r.SelectProfessional("ana"); !errors.Is(err, ErrNoSpecialty) {
		t.Fatalf("expected ErrNoSpecialty, got %v", err)
	}
}

func TestResolver_OutOfScopeSelectionRejected(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	ctx := context.Background()
	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}

	if err := r.SelectProcedure("rpg"); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection for out-of-scope procedure, got %v", err)
	}
	if err := r.SelectProfessional("bruno"); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("expected ErrInvalidSelection for out-of-scope professional, got %v", err)
	}
	if _, proc, prof := r.Selection(); proc != "" || prof != "" {
		t.Fatalf("rejected selections must leave ids empty, got %q %q", proc, prof)
	}
}

func TestResolver_SpecialtyChangeClearsOutOfScope(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	ctx := context.Background()

	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if err := r.SelectProcedure("eco"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := r.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}
	if r.State() != FullySelected {
		t.Fatalf("state = %v, want FullySelected", r.State())
	}

	if err := r.SelectSpecialty(ctx, "fisio"); err != nil {
		t.Fatalf("second SelectSpecialty: %v", err)
	}
	_, proc, prof := r.Selection()
	if proc != "" || prof != "" {
		t.Fatalf("scope change must clear out-of-scope selections, got %q %q", proc, prof)
	}
	if r.State() != SpecialtyOnly {
		t.Fatalf("state = %v after scope change, want SpecialtyOnly", r.State())
	}
}

func TestResolver_SpecialtyChangeKeepsSurvivors(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	ctx := context.Background()

	// "consulta" exists under both specialties, so it survives; the
	// professional does not.
	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if err := r.SelectProcedure("consulta"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := r.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}

	if err := r.SelectSpecialty(ctx, "fisio"); err != nil {
		t.Fatalf("second SelectSpecialty: %v", err)
	}
	_, proc, prof := r.Selection()
	if proc != "consulta" {
		t.Fatalf("in-scope procedure must survive, got %q", proc)
	}
	if prof != "" {
		t.Fatalf("out-of-scope professional must be cleared, got %q", prof)
	}
}

func TestResolver_TitleProjection(t *testing.T) {
	r := NewResolver(newFakeCatalog())
	ctx := context.Background()

	if got := r.Title(); got != PlaceholderTitle {
		t.Fatalf("empty resolver title = %q", got)
	}

	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if got := r.Title(); got != PlaceholderTitle {
		t.Fatalf("partial selection title = %q", got)
	}

	if err := r.SelectProcedure("eco"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := r.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}
	want := "Ecocardiograma com Cardiologia - Dra. Ana"
	if got := r.Title(); got != want {
		t.Fatalf("title = %q, want %q", got, want)
	}

	// The title tracks selection changes with no caching in between.
	if err := r.SelectProcedure("consulta"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	want = "Consulta com Cardiologia - Dra. Ana"
	if got := r.Title(); got != want {
		t.Fatalf("title after reselect = %q, want %q", got, want)
	}
}

func TestResolver_SpecialtiesFetchedOnce(t *testing.T) {
	catalog := newFakeCatalog()
	r := NewResolver(catalog)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Specialties(ctx); err != nil {
			t.Fatalf("Specialties: %v", err)
		}
	}
	if catalog.calls != 1 {
		t.Fatalf("specialty list fetched %d times, want 1", catalog.calls)
	}
}

func TestResolver_ResetClearsChain(t *testing.T) {
	catalog := newFakeCatalog()
	r := NewResolver(catalog)
	ctx := context.Background()

	if err := r.SelectSpecialty(ctx, "card"); err != nil {
		t.Fatalf("SelectSpecialty: %v", err)
	}
	if err := r.SelectProcedure("eco"); err != nil {
		t.Fatalf("SelectProcedure: %v", err)
	}
	if err := r.SelectProfessional("ana"); err != nil {
		t.Fatalf("SelectProfessional: %v", err)
	}

	r.Reset()
	if r.State() != NoneSelected {
		t.Fatalf("state after reset = %v, want NoneSelected", r.State())
	}
	spec, proc, prof := r.Selection()
	if spec != "" || proc != "" || prof != "" {
		t.Fatalf("selection after reset = %q %q %q", spec, proc, prof)
	}
	if len(r.Procedures()) != 0 || len(r.Professionals()) != 0 {
		t.Fatalf("candidate sets survived reset")
	}
	if err := r.SelectProcedure("eco"); !errors.Is(err, ErrNoSpecialty) {
		t.Fatalf("expected ErrNoSpecialty after reset, got %v", err)
	}

	// Reset keeps the cached global specialty list.
	if _, err := r.Specialties(ctx); err != nil {
		t.Fatalf("Specialties: %v", err)
	}
	if catalog.calls != 1 {
		t.Fatalf("specialty list fetched %d times, want 1", catalog.calls)
	}
}
