package catalogcache

import (
	"context"

	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/model"
	"github.com/tapiocalabs/clinagenda/services/agenda-service/internal/storage"
)

// Source wraps the catalog repository with the Redis cache. It satisfies the
// same reads the handlers need, so the repository can be swapped in directly
// when Redis is not configured.
type Source struct {
	repo  *storage.CatalogRepository
	cache *Cache
}

func NewSource(repo *storage.CatalogRepository, cache *Cache) *Source {
	return &Source{repo: repo, cache: cache}
}

func (s *Source) Specialties(ctx context.Context) ([]model.Specialty, error) {
	return GetOrLoad(ctx, s.cache, "specialties", s.repo.Specialties)
}

func (s *Source) ProceduresBySpecialty(ctx context.Context, specialtyID string) ([]model.Procedure, error) {
	return GetOrLoad(ctx, s.cache, "procedures:"+specialtyID, func(ctx context.Context) ([]model.Procedure, error) {
		return s.repo.ProceduresBySpecialty(ctx, specialtyID)
	})
}

func (s *Source) ProfessionalsBySpecialty(ctx context.Context, specialtyID string) ([]model.Professional, error) {
	return GetOrLoad(ctx, s.cache, "professionals:"+specialtyID, func(ctx context.Context) ([]model.Professional, error) {
		return s.repo.ProfessionalsBySpecialty(ctx, specialtyID)
	})
}
