package users

import (
	"context"

	"github.com/tagstone/tagstone/internal/identity"
)

// Store is the persistence surface the user service needs. WithTx runs the
// callback against a transaction-bound store; any error rolls back.
type Store interface {
	UserDetailByID(ctx context.Context, id int64) (*identity.UserDetail, error)
	ListUserDetails(ctx context.Context, limit, offset int) ([]identity.UserDetail, error)
	FindOrCreatePerson(ctx context.Context, email, firstName, lastName string) (*identity.Person, error)
	CreateUser(ctx context.Context, u identity.User) (int64, error)
	UpdateUser(ctx context.Context, u identity.User) error
	DeleteUser(ctx context.Context, id int64) (int64, error)
	UserPermissions(ctx context.Context, userID int64) ([]identity.Permission, error)
	SetUserPermissions(ctx context.Context, userID int64, permissionIDs []int64) error
	GroupByID(ctx context.Context, id int64) (*identity.Group, error)
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
