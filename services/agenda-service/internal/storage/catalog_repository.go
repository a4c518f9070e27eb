package storage

import (
	"context"

	"github.com/tapiocalabs/clinagenda/libs/db"
	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/model"
)

// CatalogRepository reads the clinic's specialty, procedure and professional
// tables. The catalog is administered out of band; this service only reads it.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) Specialties(ctx context.Context) ([]model.Specialty, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name
		FROM specialties
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specialties []model.Specialty
	for rows.Next() {
		var s model.Specialty
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		specialties = append(specialties, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return specialties, nil
}

func (r *CatalogRepository) ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty_id
		FROM procedures
		WHERE specialty_id = $1
		ORDER BY name ASC
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var procedures []model.Procedure
	for rows.Next() {
		var p model.Procedure
		if err := rows.Scan(&p.ID, &p.Name, &p.SpecialtyID); err != nil {
			return nil, err
		}
		procedures = append(procedures, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return procedures, nil
}

func (r *CatalogRepository) ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty_id
		FROM professionals
		WHERE specialty_id = $1
		ORDER BY name ASC
	`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var professionals []model.Professional
	for rows.Next() {
		var p model.Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.SpecialtyID); err != nil {
			return nil, err
		}
		professionals = append(professionals, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return professionals, nil
}
