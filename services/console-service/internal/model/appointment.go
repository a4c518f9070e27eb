package model

import "time"

// Appointment is the engine's local copy of a store record. References are
// embedded rather than held as bare ids because the calendar and titles need
// the display names without another round trip.
type Appointment struct {
	ID           string
	Start        time.Time
	End          time.Time
	Specialty    Specialty
	Procedure    Procedure
	Professional Professional
	Description  string
	Transport    bool
	Active       bool
	CancelledAt  *time.Time
}

type Specialty struct {
	ID   string
	Name string
}

type Procedure struct {
	ID          string
	Name        string
	SpecialtyID string
}

type Professional struct {
	ID          string
	Name        string
	SpecialtyID string
}

// Draft holds the in-progress field values of a single edit session. A zero
// ID means the draft creates a new appointment on commit.
type Draft struct {
	ID             string
	Start          time.Time
	End            time.Time
	SpecialtyID    string
	ProcedureID    string
	ProfessionalID string
	Description    string
	Transport      bool
}

// DraftOf seeds a draft from an existing appointment.
func DraftOf(a Appointment) Draft {
	return Draft{
		ID:             a.ID,
		Start:          a.Start,
		End:            a.End,
		SpecialtyID:    a.Specialty.ID,
		ProcedureID:    a.Procedure.ID,
		ProfessionalID: a.Professional.ID,
		Description:    a.Description,
		Transport:      a.Transport,
	}
}
