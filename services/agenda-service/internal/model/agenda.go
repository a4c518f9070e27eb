package model

import "time"

// Appointment is the authoritative row shape. Cancellation is soft: Active
// flips to false and CancelledAt records when, the row is never deleted.
type Appointment struct {
	ID             string
	SpecialtyID    string
	ProcedureID    string
	ProfessionalID string
	StartTime      time.Time
	EndTime        time.Time
	Description    string
	Transport      bool
	Active         bool
	CancelledAt    *time.Time
	CreatedAt      time.Time
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
