package permissions

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstone/tagstone/internal/identity"
)

type fakeSource struct {
	perms map[int64]*identity.Permission
	all   []identity.Permission
	loads atomic.Int64
	gate  chan struct{}
}

func (f *fakeSource) AllPermissions(context.Context) ([]identity.Permission, error) {
	f.loads.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.all, nil
}

func (f *fakeSource) PermissionByID(_ context.Context, id int64) (*identity.Permission, error) {
	p, ok := f.perms[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return p, nil
}

func catPerm(id, categoryID int64, name string) identity.Permission {
	return identity.Permission{ID: id, Name: name, CategoryID: &categoryID}
}

func newTestService(source *fakeSource) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(source, NewUniverse(source), logger)
}

func TestListNormalizedPaginatesViews(t *testing.T) {
	source := &fakeSource{all: []identity.Permission{
		catPerm(1, 10, `View Under Category: "Vehicles"`),
		catPerm(2, 10, `Edit Under Category: "Vehicles"`),
		catPerm(3, 20, `View Under Category: "Buildings"`),
		catPerm(4, 30, `View Under Category: "Tools"`),
	}}
	svc := newTestService(source)

	views, err := svc.ListNormalized(context.Background(), 2, 0)
	require.NoError(t, err)
	require.Len(t, views, 2, "pagination counts collapsed views, not raw rows")
	assert.Equal(t, "Buildings", views[0].Name)
	assert.Equal(t, "Tools", views[1].Name)

	views, err = svc.ListNormalized(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Vehicles", views[0].Name)
	assert.Equal(t, "edit", views[0].Clearance)
}

func TestListRaw(t *testing.T) {
	source := &fakeSource{all: []identity.Permission{
		catPerm(1, 10, `View Under Category: "Vehicles"`),
		catPerm(2, 10, `Edit Under Category: "Vehicles"`),
	}}
	svc := newTestService(source)

	perms, err := svc.ListRaw(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, perms, 2)

	perms, err = svc.ListRaw(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Empty(t, perms, "offset past the end yields nothing")
}

func TestUniverseCollapsesConcurrentLoads(t *testing.T) {
	source := &fakeSource{
		all:  []identity.Permission{catPerm(1, 10, `View Under Category: "Vehicles"`)},
		gate: make(chan struct{}),
	}
	universe := NewUniverse(source)

	// First load blocks on the gate; callers arriving meanwhile join its
	// flight instead of hitting the source again.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := universe.Load(context.Background())
		assert.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return source.loads.Load() == 1 }, time.Second, time.Millisecond)

	joined := make(chan error, 1)
	go func() {
		_, err := universe.Load(context.Background())
		joined <- err
	}()
	time.Sleep(10 * time.Millisecond)
	close(source.gate)
	wg.Wait()
	require.NoError(t, <-joined)

	assert.LessOrEqual(t, source.loads.Load(), int64(2))
}

func TestUniverseReloadsAfterFlight(t *testing.T) {
	source := &fakeSource{all: []identity.Permission{catPerm(1, 10, `View Under Category: "Vehicles"`)}}
	universe := NewUniverse(source)

	_, err := universe.Load(context.Background())
	require.NoError(t, err)
	_, err = universe.Load(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, source.loads.Load(), "the set is re-read once the flight completes")
}

func TestGet(t *testing.T) {
	p := catPerm(1, 10, `View Under Category: "Vehicles"`)
	source := &fakeSource{perms: map[int64]*identity.Permission{1: &p}}
	svc := newTestService(source)

	got, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	_, err = svc.Get(context.Background(), 2)
	assert.ErrorIs(t, err, identity.ErrNotFound)
}
