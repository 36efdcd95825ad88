package permissions

import (
	"context"
	"log/slog"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
)

// Store is the persistence surface the permission service needs beyond the
// shared universe loader.
type Store interface {
	PermissionByID(ctx context.Context, id int64) (*identity.Permission, error)
}

// Service serves the permission catalogue. Listings default to the
// normalized projection; the raw rows stay available for admin tooling.
type Service struct {
	store    Store
	universe *Universe
	logger   *slog.Logger
}

// NewService constructs the permission service.
func NewService(store Store, universe *Universe, logger *slog.Logger) *Service {
	return &Service{store: store, universe: universe, logger: logger}
}

// ListNormalized returns the catalogue collapsed to per-subject views.
// Pagination applies after normalization so page boundaries land on view
// rows, not raw rows.
func (s *Service) ListNormalized(ctx context.Context, limit, offset int) ([]authz.PermissionView, error) {
	universe, err := s.universe.Load(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(authz.Normalize(universe), limit, offset), nil
}

// ListRaw returns the catalogue rows ordered by id.
func (s *Service) ListRaw(ctx context.Context, limit, offset int) ([]identity.Permission, error) {
	universe, err := s.universe.Load(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(universe, limit, offset), nil
}

// Get returns one permission row.
func (s *Service) Get(ctx context.Context, id int64) (*identity.Permission, error) {
	return s.store.PermissionByID(ctx, id)
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
