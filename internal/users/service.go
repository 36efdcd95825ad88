package users

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
	"github.com/tagstone/tagstone/internal/permissions"
)

// Service implements user administration. Every mutation is gated by the
// requestor's capabilities and rank relative to the target.
type Service struct {
	store    Store
	resolver *authz.Resolver
	universe *permissions.Universe
	logger   *slog.Logger
}

// NewService constructs the user service.
func NewService(store Store, resolver *authz.Resolver, universe *permissions.Universe, logger *slog.Logger) *Service {
	return &Service{store: store, resolver: resolver, universe: universe, logger: logger}
}

// GroupAssignment describes a requested group change. A nil ID removes the
// user from their group; a nil Expiration inherits the destination group's
// default expiry.
type GroupAssignment struct {
	ID         *int64
	Expiration *time.Time
}

// CreateInput is the data needed to provision a user by hand.
type CreateInput struct {
	Email     string
	FirstName string
	LastName  string
	Group     *GroupAssignment
}

// UpdateInput carries the requested deltas. Nil fields are untouched.
type UpdateInput struct {
	Blocked     *bool
	Group       *GroupAssignment
	Permissions []authz.PermissionView
}

// Profile is a user detail together with their direct grants.
type Profile struct {
	Detail      identity.UserDetail
	Permissions []identity.Permission
	Normalized  []authz.PermissionView
}

// List returns user details ordered by id.
func (s *Service) List(ctx context.Context, limit, offset int) ([]identity.UserDetail, error) {
	return s.store.ListUserDetails(ctx, limit, offset)
}

// Get returns a user's profile. With full set, the direct grants come back
// normalized instead of raw.
func (s *Service) Get(ctx context.Context, id int64, full bool) (*Profile, error) {
	detail, err := s.store.UserDetailByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perms, err := s.store.UserPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	profile := &Profile{Detail: *detail}
	if full {
		profile.Normalized = authz.Normalize(perms)
	} else {
		profile.Permissions = perms
	}
	return profile, nil
}

// Create provisions a user, optionally placing them into a group the
// requestor is allowed to assign into.
func (s *Service) Create(ctx context.Context, principal *authz.Principal, input CreateInput) (*identity.UserDetail, error) {
	person, err := s.store.FindOrCreatePerson(ctx, input.Email, input.FirstName, input.LastName)
	if err != nil {
		return nil, fmt.Errorf("provision person: %w", err)
	}

	user := identity.User{PersonID: person.ID}
	if input.Group != nil && input.Group.ID != nil {
		requestorRank, err := s.resolver.RankFor(ctx, principal.User)
		if err != nil {
			return nil, err
		}
		if err := s.applyGroup(ctx, &user, *input.Group, requestorRank); err != nil {
			return nil, err
		}
	}

	id, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user created", slog.Int64("user_id", id), slog.String("email", input.Email))
	return s.store.UserDetailByID(ctx, id)
}

// Update applies the requested deltas. Each delta is gated separately: the
// requestor needs the matching capability and enough rank over the target.
// The row save and any permission replacement commit in one transaction.
func (s *Service) Update(ctx context.Context, principal *authz.Principal, caps authz.UserEditCaps, id int64, input UpdateInput) error {
	detail, err := s.store.UserDetailByID(ctx, id)
	if err != nil {
		return err
	}

	requestorRank, err := s.resolver.RankFor(ctx, principal.User)
	if err != nil {
		return err
	}
	targetRank, err := s.resolver.RankFor(ctx, &detail.User)
	if err != nil {
		return err
	}

	changed := detail.User

	if input.Blocked != nil && *input.Blocked != detail.User.Blocked {
		if !caps.Block {
			return authz.ErrCapabilityDenied
		}
		if !authz.CanActOn(caps.Block, caps.SuperBlock, requestorRank, targetRank) {
			return authz.ErrRankInsufficient
		}
		changed.Blocked = *input.Blocked
	}

	if input.Group != nil {
		if !caps.Assign {
			return authz.ErrCapabilityDenied
		}
		if !authz.CanActOn(caps.Assign, caps.SuperAssign, requestorRank, targetRank) {
			return authz.ErrRankInsufficient
		}
		if input.Group.ID == nil {
			changed.GroupID = nil
			changed.GroupExpiration = nil
		} else if err := s.applyGroup(ctx, &changed, *input.Group, requestorRank); err != nil {
			return err
		}
	}

	var permissionIDs []int64
	replacePerms := input.Permissions != nil
	if replacePerms {
		if !caps.Permit {
			return authz.ErrCapabilityDenied
		}
		if !authz.CanActOn(caps.Permit, caps.SuperPermit, requestorRank, targetRank) {
			return authz.ErrRankInsufficient
		}
		universe, err := s.universe.Load(ctx)
		if err != nil {
			return fmt.Errorf("load permission universe: %w", err)
		}
		permissionIDs = authz.Denormalize(input.Permissions, universe)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdateUser(ctx, changed); err != nil {
			return err
		}
		if replacePerms {
			return tx.SetUserPermissions(ctx, id, permissionIDs)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.logger.Info("user updated", slog.Int64("user_id", id))
	return nil
}

// Delete removes a user the requestor outranks.
func (s *Service) Delete(ctx context.Context, principal *authz.Principal, caps authz.UserEditCaps, id int64) error {
	detail, err := s.store.UserDetailByID(ctx, id)
	if err != nil {
		return err
	}

	requestorRank, err := s.resolver.RankFor(ctx, principal.User)
	if err != nil {
		return err
	}
	targetRank, err := s.resolver.RankFor(ctx, &detail.User)
	if err != nil {
		return err
	}
	if !authz.CanActOn(caps.Remove, caps.SuperRemove, requestorRank, targetRank) {
		return authz.ErrRankInsufficient
	}

	n, err := s.store.DeleteUser(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	s.logger.Info("user deleted", slog.Int64("user_id", id))
	return nil
}

func (s *Service) applyGroup(ctx context.Context, user *identity.User, assignment GroupAssignment, requestorRank *int) error {
	dest, err := s.store.GroupByID(ctx, *assignment.ID)
	if err != nil {
		return err
	}
	if !authz.CanAssignToGroup(requestorRank, authz.Rank(dest)) {
		return authz.ErrRankInsufficient
	}
	user.GroupID = &dest.ID
	if assignment.Expiration != nil {
		user.GroupExpiration = assignment.Expiration
	} else {
		user.GroupExpiration = dest.Expiration
	}
	return nil
}
