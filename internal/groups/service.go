package groups

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/permissions"
)

// ErrReservedGroup indicates an attempt to change or remove the Super User
// group, which is immutable.
var ErrReservedGroup = errors.New("the Super User group cannot be changed")

// ErrReservedPriority indicates a priority at or below the reserved
// super-user tier.
var ErrReservedPriority = errors.New("group priority must be greater than zero")

// Store is the persistence surface the group service needs.
type Store interface {
	GroupByID(ctx context.Context, id int64) (*identity.Group, error)
	ListGroups(ctx context.Context, limit, offset int) ([]identity.Group, error)
	CreateGroup(ctx context.Context, g identity.Group) (int64, error)
	UpdateGroup(ctx context.Context, g identity.Group) error
	DeleteGroup(ctx context.Context, id int64) (int64, error)
	GroupPermissions(ctx context.Context, groupID int64) ([]identity.Permission, error)
	SetGroupPermissions(ctx context.Context, groupID int64, permissionIDs []int64) error
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error
}

type repoStore struct {
	*identity.Repository
}

// NewStore adapts the identity repository to the service's Store interface.
func NewStore(repo *identity.Repository) Store {
	return repoStore{repo}
}

func (s repoStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return s.Repository.WithTx(ctx, func(ctx context.Context, tx *identity.Repository) error {
		return fn(ctx, repoStore{tx})
	})
}

// Service implements group administration.
type Service struct {
	store    Store
	universe *permissions.Universe
	logger   *slog.Logger
}

// NewService constructs the group service.
func NewService(store Store, universe *permissions.Universe, logger *slog.Logger) *Service {
	return &Service{store: store, universe: universe, logger: logger}
}

// CreateInput is the data for a new group.
type CreateInput struct {
	Name        string
	Priority    int
	Expiration  *time.Time
	Permissions []authz.PermissionView
}

// UpdateInput carries the requested group deltas. Nil fields are untouched.
type UpdateInput struct {
	Name        *string
	Priority    *int
	Expiration  *time.Time
	ClearExpiry bool
	Permissions []authz.PermissionView
}

// Detail is a group together with its grants, normalized.
type Detail struct {
	Group       identity.Group
	Permissions []authz.PermissionView
}

// List returns groups ordered by id.
func (s *Service) List(ctx context.Context, limit, offset int) ([]identity.Group, error) {
	return s.store.ListGroups(ctx, limit, offset)
}

// Get returns a group with its grants normalized.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	group, err := s.store.GroupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.GroupPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Group: *group, Permissions: authz.Normalize(perms)}, nil
}

// Create inserts a group, optionally attaching denormalized permissions in
// the same transaction. Priority zero is reserved for the Super User group.
func (s *Service) Create(ctx context.Context, input CreateInput) (*identity.Group, error) {
	if input.Priority <= 0 {
		return nil, ErrReservedPriority
	}
	if input.Name == identity.SuperUserGroup {
		return nil, ErrReservedGroup
	}

	permissionIDs, err := s.denormalize(ctx, input.Permissions)
	if err != nil {
		return nil, err
	}

	group := identity.Group{Name: input.Name, Priority: input.Priority, Expiration: input.Expiration}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		id, err := tx.CreateGroup(ctx, group)
		if err != nil {
			return err
		}
		group.ID = id
		if len(permissionIDs) > 0 {
			return tx.SetGroupPermissions(ctx, id, permissionIDs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("group created", slog.Int64("group_id", group.ID), slog.String("name", group.Name))
	return &group, nil
}

// Update applies group deltas, replacing the grant set in the same
// transaction when permissions are supplied. The Super User group is
// immutable.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) error {
	group, err := s.store.GroupByID(ctx, id)
	if err != nil {
		return err
	}
	if group.Name == identity.SuperUserGroup {
		return ErrReservedGroup
	}

	if input.Name != nil {
		if *input.Name == identity.SuperUserGroup {
			return ErrReservedGroup
		}
		group.Name = *input.Name
	}
	if input.Priority != nil {
		if *input.Priority <= 0 {
			return ErrReservedPriority
		}
		group.Priority = *input.Priority
	}
	if input.ClearExpiry {
		group.Expiration = nil
	} else if input.Expiration != nil {
		group.Expiration = input.Expiration
	}

	replacePerms := input.Permissions != nil
	var permissionIDs []int64
	if replacePerms {
		permissionIDs, err = s.denormalize(ctx, input.Permissions)
		if err != nil {
			return err
		}
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdateGroup(ctx, *group); err != nil {
			return err
		}
		if replacePerms {
			return tx.SetGroupPermissions(ctx, id, permissionIDs)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	s.logger.Info("group updated", slog.Int64("group_id", id))
	return nil
}

// Delete removes a group. The Super User group is immutable.
func (s *Service) Delete(ctx context.Context, id int64) error {
	group, err := s.store.GroupByID(ctx, id)
	if err != nil {
		return err
	}
	if group.Name == identity.SuperUserGroup {
		return ErrReservedGroup
	}
	n, err := s.store.DeleteGroup(ctx, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	s.logger.Info("group deleted", slog.Int64("group_id", id))
	return nil
}

func (s *Service) denormalize(ctx context.Context, views []authz.PermissionView) ([]int64, error) {
	if len(views) == 0 {
		return nil, nil
	}
	universe, err := s.universe.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load permission universe: %w", err)
	}
	return authz.Denormalize(views, universe), nil
}
