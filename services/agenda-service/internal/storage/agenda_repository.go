package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tapiocalabs/clinagenda/libs/db"
	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/model"
)

type AgendaRepository struct {
	pool *db.Pool
}

// AppointmentDetail is an appointment joined with its catalog names, the
// shape every read endpoint returns.
type AppointmentDetail struct {
	Appointment      model.Appointment
	SpecialtyName    string
	ProcedureName    string
	ProfessionalName string
}

func NewAgendaRepository(pool *db.Pool) *AgendaRepository {
	return &AgendaRepository{pool: pool}
}

func (r *AgendaRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *AgendaRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, specialty_id, procedure_id, professional_id, start_time, end_time, description, transport, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true)
		RETURNING created_at
	`, appt.ID, appt.SpecialtyID, appt.ProcedureID, appt.ProfessionalID,
		appt.StartTime, appt.EndTime, appt.Description, appt.Transport).Scan(&appt.CreatedAt)
}

func (r *AgendaRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT id, specialty_id, procedure_id, professional_id,
			start_time, end_time, COALESCE(description, ''), transport, active, cancelled_at, created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&appt.ID,
		&appt.SpecialtyID,
		&appt.ProcedureID,
		&appt.ProfessionalID,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Description,
		&appt.Transport,
		&appt.Active,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *AgendaRepository) Update(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET specialty_id = $2,
			procedure_id = $3,
			professional_id = $4,
			start_time = $5,
			end_time = $6,
			description = $7,
			transport = $8
		WHERE id = $1 AND active = true
	`, appt.ID, appt.SpecialtyID, appt.ProcedureID, appt.ProfessionalID,
		appt.StartTime, appt.EndTime, appt.Description, appt.Transport)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *AgendaRepository) Cancel(ctx context.Context, tx pgx.Tx, id string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET active = false,
			cancelled_at = now()
		WHERE id = $1 AND active = true
		RETURNING cancelled_at
	`, id).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *AgendaRepository) Get(ctx context.Context, id string) (AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

// List returns every appointment, active and cancelled, ordered by start.
// The console decides what to surface.
func (r *AgendaRepository) List(ctx context.Context) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, detailSelect+` ORDER BY a.start_time ASC, a.created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return details, nil
}

const detailSelect = `
	SELECT a.id, a.specialty_id, a.procedure_id, a.professional_id,
		a.start_time, a.end_time, COALESCE(a.description, ''), a.transport, a.active, a.cancelled_at, a.created_at,
		s.name, pc.name, pf.name
	FROM appointments a
	JOIN specialties s ON s.id = a.specialty_id
	JOIN procedures pc ON pc.id = a.procedure_id
	JOIN professionals pf ON pf.id = a.professional_id`

func scanDetail(row pgx.Row) (AppointmentDetail, error) {
	var d AppointmentDetail
	var cancelledAt *time.Time
	err := row.Scan(
		&d.Appointment.ID,
		&d.Appointment.SpecialtyID,
		&d.Appointment.ProcedureID,
		&d.Appointment.ProfessionalID,
		&d.Appointment.StartTime,
		&d.Appointment.EndTime,
		&d.Appointment.Description,
		&d.Appointment.Transport,
		&d.Appointment.Active,
		&cancelledAt,
		&d.Appointment.CreatedAt,
		&d.SpecialtyName,
		&d.ProcedureName,
		&d.ProfessionalName,
	)
	if err != nil {
		return AppointmentDetail{}, err
	}
	d.Appointment.CancelledAt = cancelledAt
	return d, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsForeignKeyViolation reports a reference to a missing catalog row.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
