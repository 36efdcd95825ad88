package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tagstone/tagstone/internal/identity"
)

// PermissionSource provides the raw grant sets a principal's effective
// permissions are assembled from.
type PermissionSource interface {
	UserPermissions(ctx context.Context, userID int64) ([]identity.Permission, error)
	GroupPermissions(ctx context.Context, groupID int64) ([]identity.Permission, error)
	GroupByID(ctx context.Context, id int64) (*identity.Group, error)
}

// Resolver computes a principal's effective permission set: direct grants
// unioned with group grants while the group membership is active.
type Resolver struct {
	store PermissionSource
	now   func() time.Time
}

// NewResolver builds a Resolver. A nil clock defaults to time.Now.
func NewResolver(store PermissionSource, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{store: store, now: now}
}

// PermissionsFor returns the deduplicated union of the user's direct grants
// and their group's grants. An expired group membership contributes nothing;
// the direct grants still apply. The result is never authorization by itself:
// callers deny on an empty set.
func (r *Resolver) PermissionsFor(ctx context.Context, user *identity.User) ([]identity.Permission, error) {
	direct, err := r.store.UserPermissions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionLookup, err)
	}

	if user.GroupID == nil || !r.membershipActive(user) {
		return direct, nil
	}

	grouped, err := r.store.GroupPermissions(ctx, *user.GroupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionLookup, err)
	}

	seen := make(map[int64]struct{}, len(direct))
	merged := make([]identity.Permission, 0, len(direct)+len(grouped))
	for _, p := range direct {
		seen[p.ID] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range grouped {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		merged = append(merged, p)
	}
	return merged, nil
}

// RankFor resolves the user's authority rank from their active group
// membership. Users without a group, or with an expired membership, have no
// rank.
func (r *Resolver) RankFor(ctx context.Context, user *identity.User) (*int, error) {
	if user.GroupID == nil || !r.membershipActive(user) {
		return nil, nil
	}
	group, err := r.store.GroupByID(ctx, *user.GroupID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPermissionLookup, err)
	}
	return Rank(group), nil
}

func (r *Resolver) membershipActive(user *identity.User) bool {
	return user.GroupExpiration == nil || user.GroupExpiration.After(r.now())
}
