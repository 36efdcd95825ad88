package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
)

// defaultPermissions are the global capabilities every install starts with.
// Category-scoped permissions are generated per category, not listed here.
var defaultPermissions = []identity.Permission{
	{Name: "Assign Group", Description: "Gives permission to assign users in lower priorities to groups."},
	{Name: "Block User", Description: "Gives permission to block or unblock users in lower-priority groups."},
	{Name: "Change User Permissions", Description: "Gives permission to change the specific permissions of users in lower-priority groups."},
	{Name: "Check In and Check Out Assets", Description: "Gives permission to check in and check out assets to people."},
	{Name: "Create Alert Type", Description: "Gives permission to create alert types."},
	{Name: "Create Asset Profile", Description: "Gives permission to create asset templates (AKA \"profiles\")."},
	{Name: "Create Asset Type", Description: "Gives permission to create asset types."},
	{Name: "Create Category", Description: "Gives permission to create asset categories."},
	{Name: "Create Field List", Description: "Gives permission to create lists for custom dropdown fields."},
	{Name: "Create Group", Description: "Gives permission to create groups of a lower or equal priority."},
	{Name: "Create Location", Description: "Gives permission to create locations (such as buildings and rooms)."},
	{Name: "Create User", Description: "Gives permission to create users out of people."},
	{Name: "Create Vendor", Description: "Gives permission to create vendors."},
	{Name: "Delete Alert Type", Description: "Gives permission to delete alert types."},
	{Name: "Delete Asset Profile", Description: "Gives permission to delete asset templates (AKA \"profiles\")."},
	{Name: "Delete Asset Type", Description: "Gives permission to delete asset types."},
	{Name: "Delete Category", Description: "Gives permission to delete asset categories."},
	{Name: "Delete Field List", Description: "Gives permission to delete lists for custom dropdown fields."},
	{Name: "Delete Group", Description: "Gives permission to delete groups of a lower or equal priority."},
	{Name: "Delete Location", Description: "Gives permission to delete locations (such as buildings and rooms)."},
	{Name: "Delete Vendor", Description: "Gives permission to delete vendors."},
	{Name: "Edit Alert Type", Description: "Gives permission to edit alert types."},
	{Name: "Edit Asset Profile", Description: "Gives permission to edit asset templates (AKA \"profiles\")."},
	{Name: "Edit Asset Type", Description: "Gives permission to edit asset types."},
	{Name: "Edit Category", Description: "Gives permission to edit asset categories."},
	{Name: "Edit Field List", Description: "Gives permission to edit lists for custom dropdown fields."},
	{Name: "Edit Group", Description: "Gives permission to edit groups of a lower or equal priority."},
	{Name: "Edit Location", Description: "Gives permission to edit locations (such as buildings and rooms)."},
	{Name: "Edit Vendor", Description: "Gives permission to edit vendors."},
	{Name: "Remove User", Description: "Gives permission to remove a user status from people in lower-priority groups."},
	{Name: "Super Assign Group", Description: "Gives permission to assign users in equal or lower priorities to groups."},
	{Name: "Super Block User", Description: "Gives permission to block or unblock users in equal- or lower-priority groups."},
	{Name: "Super Change User Permissions", Description: "Gives permission to change the specific permissions of users in equal- or lower-priority groups."},
	{Name: "Super Remove User", Description: "Gives permission to remove a user status from people in equal- or lower-priority groups."},
	{Name: "View User", Description: "Gives permission to view a user's permissions and other user-specific data."},
}

// defaultCategories are seeded before the Super User group so their generated
// permissions land in the full grant set.
var defaultCategories = []identity.Category{
	{Name: "Locations", Description: "A category reserved for buildings and rooms."},
}

// Store is the persistence surface the seeder needs.
type Store interface {
	EnsurePermission(ctx context.Context, p identity.Permission) (*identity.Permission, error)
	CategoryByName(ctx context.Context, name string) (*identity.Category, error)
	CreateCategory(ctx context.Context, c identity.Category) (int64, error)
	FindOrCreateGroup(ctx context.Context, g identity.Group) (*identity.Group, error)
	AllPermissions(ctx context.Context) ([]identity.Permission, error)
	AttachPermissionsToGroup(ctx context.Context, groupID int64, permissionIDs []int64) error
}

// Seed provisions the default permissions, categories and the Super User
// group. It is idempotent and safe to run on every startup.
func Seed(ctx context.Context, store Store, logger *slog.Logger) error {
	for _, def := range defaultPermissions {
		if _, err := store.EnsurePermission(ctx, def); err != nil {
			return fmt.Errorf("bootstrap: ensure permission %q: %w", def.Name, err)
		}
	}

	for _, def := range defaultCategories {
		if err := seedCategory(ctx, store, def); err != nil {
			return err
		}
	}

	super, err := store.FindOrCreateGroup(ctx, identity.Group{Name: identity.SuperUserGroup, Priority: 0})
	if err != nil {
		return fmt.Errorf("bootstrap: ensure super user group: %w", err)
	}

	all, err := store.AllPermissions(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list permissions: %w", err)
	}
	ids := make([]int64, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	if err := store.AttachPermissionsToGroup(ctx, super.ID, ids); err != nil {
		return fmt.Errorf("bootstrap: grant super user group: %w", err)
	}

	logger.Info("defaults provisioned",
		slog.Int("permissions", len(all)),
		slog.Int("categories", len(defaultCategories)))
	return nil
}

func seedCategory(ctx context.Context, store Store, def identity.Category) error {
	cat, err := store.CategoryByName(ctx, def.Name)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		id, createErr := store.CreateCategory(ctx, def)
		if createErr != nil {
			return fmt.Errorf("bootstrap: create category %q: %w", def.Name, createErr)
		}
		cat = &identity.Category{ID: id, Name: def.Name, Description: def.Description}
	case err != nil:
		return fmt.Errorf("bootstrap: find category %q: %w", def.Name, err)
	}

	for _, p := range authz.CategoryPermissions(cat.ID, cat.Name) {
		if _, err := store.EnsurePermission(ctx, p); err != nil {
			return fmt.Errorf("bootstrap: ensure category permission %q: %w", p.Name, err)
		}
	}
	return nil
}
