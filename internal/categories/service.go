package categories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
)

// Store is the persistence surface the category service needs.
type Store interface {
	CategoryByID(ctx context.Context, id int64) (*identity.Category, error)
	ListCategories(ctx context.Context, ids []int64, limit, offset int) ([]identity.Category, error)
	CreateCategory(ctx context.Context, c identity.Category) (int64, error)
	UpdateCategory(ctx context.Context, c identity.Category) error
	DeleteCategory(ctx context.Context, id int64) (int64, error)
	CreatePermissions(ctx context.Context, perms []identity.Permission) ([]identity.Permission, error)
	PermissionsForCategory(ctx context.Context, categoryID int64) ([]identity.Permission, error)
	DeletePermissionsForCategory(ctx context.Context, categoryID int64) (int64, error)
	UpdatePermissionText(ctx context.Context, id int64, name, description string) error
	GroupByName(ctx context.Context, name string) (*identity.Group, error)
	GroupsByName(ctx context.Context, names []string) ([]identity.Group, error)
	AttachPermissionsToGroup(ctx context.Context, groupID int64, permissionIDs []int64) error
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

// Service implements category administration. A category's lifecycle is
// coupled to its five generated permissions; every mutation that touches
// both commits in one transaction.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService constructs the category service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateInput is the data for a new category. Groups names the groups that
// receive the generated permissions alongside Super User.
type CreateInput struct {
	Name        string
	Description string
	Groups      []string
}

// List returns the categories in the caller's visible set, ordered by id.
func (s *Service) List(ctx context.Context, visible []int64, limit, offset int) ([]identity.Category, error) {
	if len(visible) == 0 {
		return nil, nil
	}
	return s.store.ListCategories(ctx, visible, limit, offset)
}

// Get returns one category, provided it is in the caller's visible set.
func (s *Service) Get(ctx context.Context, visible []int64, id int64) (*identity.Category, error) {
	if !containsID(visible, id) {
		return nil, authz.ErrNoCategoryAccess
	}
	return s.store.CategoryByID(ctx, id)
}

// Create inserts the category row, generates its five permissions, and
// attaches them to the Super User group plus any named groups, all in one
// transaction. Any failure leaves no category row behind.
func (s *Service) Create(ctx context.Context, input CreateInput) (*identity.Category, error) {
	category := identity.Category{Name: input.Name, Description: input.Description}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		id, err := tx.CreateCategory(ctx, category)
		if err != nil {
			return err
		}
		category.ID = id

		created, err := tx.CreatePermissions(ctx, authz.CategoryPermissions(id, input.Name))
		if err != nil {
			return err
		}
		permissionIDs := make([]int64, 0, len(created))
		for _, p := range created {
			permissionIDs = append(permissionIDs, p.ID)
		}

		super, err := tx.GroupByName(ctx, identity.SuperUserGroup)
		if err != nil {
			return fmt.Errorf("super user group: %w", err)
		}
		if err := tx.AttachPermissionsToGroup(ctx, super.ID, permissionIDs); err != nil {
			return err
		}

		if len(input.Groups) == 0 {
			return nil
		}
		groups, err := tx.GroupsByName(ctx, input.Groups)
		if err != nil {
			return err
		}
		for _, g := range groups {
			if g.ID == super.ID {
				continue
			}
			if err := tx.AttachPermissionsToGroup(ctx, g.ID, permissionIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.logger.Info("category created", slog.Int64("category_id", category.ID), slog.String("name", category.Name))
	return &category, nil
}

// Update saves the category row and, on rename, rewrites the quoted
// category name inside every generated permission's name and description in
// the same transaction.
func (s *Service) Update(ctx context.Context, id int64, name, description string) error {
	current, err := s.store.CategoryByID(ctx, id)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdateCategory(ctx, identity.Category{ID: id, Name: name, Description: description}); err != nil {
			return err
		}
		if name == current.Name {
			return nil
		}

		perms, err := tx.PermissionsForCategory(ctx, id)
		if err != nil {
			return err
		}
		oldQuoted := strconv.Quote(current.Name)
		newQuoted := strconv.Quote(name)
		for _, p := range perms {
			renamed := strings.ReplaceAll(p.Name, oldQuoted, newQuoted)
			redescribed := strings.ReplaceAll(p.Description, oldQuoted, newQuoted)
			if renamed == p.Name && redescribed == p.Description {
				continue
			}
			if err := tx.UpdatePermissionText(ctx, p.ID, renamed, redescribed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save category: %w", err)
	}
	s.logger.Info("category updated", slog.Int64("category_id", id))
	return nil
}

// Delete removes a category and its generated permissions in one
// transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.DeletePermissionsForCategory(ctx, id); err != nil {
			return err
		}
		n, err := tx.DeleteCategory(ctx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return identity.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.ErrNotFound
		}
		return fmt.Errorf("delete category: %w", err)
	}
	s.logger.Info("category deleted", slog.Int64("category_id", id))
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
