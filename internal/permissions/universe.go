package permissions

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/tagstone/tagstone/internal/identity"
)

// UniverseSource loads the complete permission set.
type UniverseSource interface {
	AllPermissions(ctx context.Context) ([]identity.Permission, error)
}

// Universe shares the all-permissions load across concurrent callers. The
// set is re-read on every call; only simultaneous loads collapse.
type Universe struct {
	source UniverseSource
	group  singleflight.Group
}

// NewUniverse builds a shared universe loader.
func NewUniverse(source UniverseSource) *Universe {
	return &Universe{source: source}
}

// Load returns every permission, ordered by id.
func (u *Universe) Load(ctx context.Context) ([]identity.Permission, error) {
	v, err, _ := u.group.Do("all", func() (interface{}, error) {
		return u.source.AllPermissions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]identity.Permission), nil
}
