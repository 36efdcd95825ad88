package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstone/tagstone/internal/identity"
)

type fakeSeedStore struct {
	perms      map[string]identity.Permission
	categories map[string]identity.Category
	groups     map[string]identity.Group
	granted    map[int64][]int64
	nextID     int64
}

func newFakeSeedStore() *fakeSeedStore {
	return &fakeSeedStore{
		perms:      map[string]identity.Permission{},
		categories: map[string]identity.Category{},
		groups:     map[string]identity.Group{},
		granted:    map[int64][]int64{},
	}
}

func (f *fakeSeedStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeSeedStore) EnsurePermission(_ context.Context, p identity.Permission) (*identity.Permission, error) {
	if existing, ok := f.perms[p.Name]; ok {
		existing.CategoryID = p.CategoryID
		f.perms[p.Name] = existing
		return &existing, nil
	}
	p.ID = f.id()
	f.perms[p.Name] = p
	return &p, nil
}

func (f *fakeSeedStore) CategoryByName(_ context.Context, name string) (*identity.Category, error) {
	c, ok := f.categories[name]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return &c, nil
}

func (f *fakeSeedStore) CreateCategory(_ context.Context, c identity.Category) (int64, error) {
	c.ID = f.id()
	f.categories[c.Name] = c
	return c.ID, nil
}

func (f *fakeSeedStore) FindOrCreateGroup(_ context.Context, g identity.Group) (*identity.Group, error) {
	if existing, ok := f.groups[g.Name]; ok {
		return &existing, nil
	}
	g.ID = f.id()
	f.groups[g.Name] = g
	return &g, nil
}

func (f *fakeSeedStore) AllPermissions(context.Context) ([]identity.Permission, error) {
	out := make([]identity.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeSeedStore) AttachPermissionsToGroup(_ context.Context, groupID int64, permissionIDs []int64) error {
	f.granted[groupID] = permissionIDs
	return nil
}

func seedLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeedProvisionsDefaults(t *testing.T) {
	store := newFakeSeedStore()
	require.NoError(t, Seed(context.Background(), store, seedLogger()))

	assert.Contains(t, store.perms, "Block User")
	assert.Contains(t, store.perms, "Super Change User Permissions")
	assert.Contains(t, store.perms, "View User")

	cat, ok := store.categories["Locations"]
	require.True(t, ok)
	scoped, ok := store.perms[`View Under Category: "Locations"`]
	require.True(t, ok, "category permissions are generated alongside the category")
	require.NotNil(t, scoped.CategoryID)
	assert.Equal(t, cat.ID, *scoped.CategoryID)

	super, ok := store.groups[identity.SuperUserGroup]
	require.True(t, ok)
	assert.Zero(t, super.Priority)
	assert.Len(t, store.granted[super.ID], len(store.perms), "the super user group holds every permission")
}

func TestSeedIsIdempotent(t *testing.T) {
	store := newFakeSeedStore()
	require.NoError(t, Seed(context.Background(), store, seedLogger()))
	before := len(store.perms)

	require.NoError(t, Seed(context.Background(), store, seedLogger()))
	assert.Equal(t, before, len(store.perms), "reseeding creates no duplicate permissions")
	assert.Len(t, store.categories, 1)
	assert.Len(t, store.groups, 1)
}
