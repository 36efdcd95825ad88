package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstone/tagstone/internal/identity"
)

func vehicleUniverse() []identity.Permission {
	return []identity.Permission{
		catPerm(1, 10, `Create Under Category: "Vehicles"`),
		catPerm(2, 10, `Delete Under Category: "Vehicles"`),
		catPerm(3, 10, `Edit Under Category: "Vehicles"`),
		catPerm(4, 10, `View Under Category: "Vehicles"`),
		catPerm(5, 10, `Report For Category: "Vehicles"`),
		catPerm(6, 20, `View Under Category: "Buildings"`),
		globalPerm(7, "Block User"),
	}
}

func TestNormalizeCollapsesToHighestTier(t *testing.T) {
	views := Normalize([]identity.Permission{
		catPerm(4, 10, `View Under Category: "Vehicles"`),
		catPerm(1, 10, `Create Under Category: "Vehicles"`),
	})

	require.Len(t, views, 1)
	assert.Equal(t, "Vehicles", views[0].Name)
	assert.Equal(t, ClearanceCreate, views[0].Clearance)
	assert.False(t, views[0].Report)
}

func TestNormalizeReportIsIndependent(t *testing.T) {
	views := Normalize([]identity.Permission{
		catPerm(5, 10, `Report For Category: "Vehicles"`),
	})

	require.Len(t, views, 1)
	assert.Equal(t, ClearanceNone, views[0].Clearance)
	assert.True(t, views[0].Report)
}

func TestNormalizeGlobalPassthrough(t *testing.T) {
	views := Normalize([]identity.Permission{globalPerm(7, "Block User")})

	require.Len(t, views, 1)
	assert.Equal(t, "Block User", views[0].Name)
	assert.Equal(t, ClearanceFull, views[0].Clearance)
	assert.Nil(t, views[0].CategoryID)
}

func TestNormalizeSortsBySubject(t *testing.T) {
	views := Normalize([]identity.Permission{
		catPerm(4, 10, `View Under Category: "Vehicles"`),
		catPerm(6, 20, `View Under Category: "Buildings"`),
	})

	require.Len(t, views, 2)
	assert.Equal(t, "Buildings", views[0].Name)
	assert.Equal(t, "Vehicles", views[1].Name)
}

func TestDenormalizeExpandsClearance(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: ClearanceCreate},
	}, vehicleUniverse())

	assert.Equal(t, []int64{1, 3, 4}, ids, "create clearance implies edit and view")
}

func TestDenormalizeReportFlag(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: ClearanceNone, Report: true},
	}, vehicleUniverse())
	assert.Empty(t, ids, "clearance none skips the view entirely")

	ids = Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: ClearanceView, Report: true},
	}, vehicleUniverse())
	assert.Equal(t, []int64{4, 5}, ids)
}

func TestDenormalizeExactGlobalMatch(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Block User", Clearance: ClearanceFull},
	}, vehicleUniverse())
	assert.Equal(t, []int64{7}, ids)

	ids = Denormalize([]PermissionView{
		{Name: "block user", Clearance: ClearanceFull},
	}, vehicleUniverse())
	assert.Equal(t, []int64{7}, ids, "exact matching ignores case")
}

func TestDenormalizeFullWithoutExactMatch(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: ClearanceFull, Report: true},
	}, vehicleUniverse())

	assert.Equal(t, []int64{5}, ids, "full maps to no tier; only the report grant survives")
}

func TestDenormalizeUnknownSubject(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Spaceships", Clearance: ClearanceDelete},
	}, vehicleUniverse())
	assert.Empty(t, ids)
}

func TestDenormalizeTrimsAndLowercasesClearance(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: "  View "},
	}, vehicleUniverse())
	assert.Equal(t, []int64{4}, ids)
}

func TestDenormalizeDeduplicatesAndSorts(t *testing.T) {
	ids := Denormalize([]PermissionView{
		{Name: "Vehicles", Clearance: ClearanceDelete, Report: true},
		{Name: "Vehicles", Clearance: ClearanceView},
	}, vehicleUniverse())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids)
}

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	universe := vehicleUniverse()
	granted := []identity.Permission{
		catPerm(1, 10, `Create Under Category: "Vehicles"`),
		catPerm(3, 10, `Edit Under Category: "Vehicles"`),
		catPerm(4, 10, `View Under Category: "Vehicles"`),
		catPerm(5, 10, `Report For Category: "Vehicles"`),
		globalPerm(7, "Block User"),
	}

	ids := Denormalize(Normalize(granted), universe)
	assert.Equal(t, []int64{1, 3, 4, 5, 7}, ids)
}
