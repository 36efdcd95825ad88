package authz

import (
	"sort"
	"strings"

	"github.com/tagstone/tagstone/internal/identity"
)

// PermissionView is the compact per-subject projection served to clients.
// Category-scoped grants collapse to one row per subject holding the highest
// clearance tier; global grants pass through with clearance "full".
type PermissionView struct {
	Name       string `json:"name"`
	Clearance  string `json:"clearance"`
	Report     bool   `json:"report"`
	CategoryID *int64 `json:"categoryId"`
}

// Clearance tiers, lowest to highest. "full" marks global grants and never
// participates in tier arithmetic.
const (
	ClearanceNone   = "none"
	ClearanceView   = "view"
	ClearanceEdit   = "edit"
	ClearanceCreate = "create"
	ClearanceDelete = "delete"
	ClearanceFull   = "full"
)

var clearanceTiers = map[string]int{
	ClearanceNone:   0,
	ClearanceView:   1,
	ClearanceEdit:   2,
	ClearanceCreate: 3,
	ClearanceDelete: 4,
}

// tierOrder lists the grantable tiers ascending, for clearance expansion.
var tierOrder = []string{ClearanceView, ClearanceEdit, ClearanceCreate, ClearanceDelete}

// Normalize collapses a raw permission set into per-subject views, sorted
// lexicographically by subject name.
func Normalize(perms []identity.Permission) []PermissionView {
	views := normalize(perms)
	sort.SliceStable(views, func(i, j int) bool { return views[i].Name < views[j].Name })
	return views
}

// NormalizeUnsorted is Normalize without the final sort, preserving the
// input set's ordering for paginated listings.
func NormalizeUnsorted(perms []identity.Permission) []PermissionView {
	return normalize(perms)
}

func normalize(perms []identity.Permission) []PermissionView {
	views := make([]PermissionView, 0, len(perms))
	for _, perm := range perms {
		if perm.CategoryID == nil {
			views = append(views, PermissionView{
				Name:      perm.Name,
				Clearance: ClearanceFull,
			})
			continue
		}

		subject := QuotedSubject(perm.Name)
		report := containsFold(perm.Name, "report")
		clearance := classifyClearance(perm.Name, report)

		if existing := findView(views, subject); existing != nil {
			if clearanceTiers[existing.Clearance] < clearanceTiers[clearance] {
				existing.Clearance = clearance
			}
			if report {
				existing.Report = true
			}
			continue
		}

		views = append(views, PermissionView{
			Name:       subject,
			Clearance:  clearance,
			Report:     report,
			CategoryID: perm.CategoryID,
		})
	}
	return views
}

// Denormalize maps views back to concrete permission ids against the known
// universe, deduplicated and sorted ascending. The universe must be ordered
// by id so the per-keyword first-match tie-break stays deterministic.
//
// Known lossy edge: a "full" view whose name matches no global permission
// exactly expands to nothing (the tier table has no "full" entry), so
// normalize-then-denormalize does not reproduce ambiguously named global
// grants. Kept as designed.
func Denormalize(views []PermissionView, universe []identity.Permission) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	include := func(p identity.Permission) {
		if _, ok := seen[p.ID]; ok {
			return
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}

	for _, view := range views {
		clearance := strings.ToLower(strings.TrimSpace(view.Clearance))
		if clearance == "" || clearance == ClearanceNone {
			continue
		}

		if exact := exactMatch(universe, view.Name); exact != nil {
			if clearance == ClearanceFull {
				include(*exact)
			}
			continue
		}

		candidates := subjectCandidates(universe, view.Name)
		if len(candidates) == 0 {
			continue
		}

		limit, graded := clearanceTiers[clearance]
		for _, tier := range tierOrder {
			if !graded || clearanceTiers[tier] > limit {
				continue
			}
			if p := firstContaining(candidates, tier); p != nil {
				include(*p)
			}
		}
		if view.Report {
			if p := firstContaining(candidates, "report"); p != nil {
				include(*p)
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func classifyClearance(name string, report bool) string {
	switch {
	case report:
		return ClearanceNone
	case containsFold(name, "view"):
		return ClearanceView
	case containsFold(name, "edit"):
		return ClearanceEdit
	case containsFold(name, "create"):
		return ClearanceCreate
	case containsFold(name, "delete"):
		return ClearanceDelete
	default:
		return ClearanceNone
	}
}

func findView(views []PermissionView, name string) *PermissionView {
	for i := range views {
		if views[i].Name == name {
			return &views[i]
		}
	}
	return nil
}

func exactMatch(universe []identity.Permission, name string) *identity.Permission {
	for i := range universe {
		if strings.EqualFold(universe[i].Name, name) {
			return &universe[i]
		}
	}
	return nil
}

func subjectCandidates(universe []identity.Permission, subject string) []identity.Permission {
	var out []identity.Permission
	for _, p := range universe {
		if p.CategoryID == nil {
			continue
		}
		if containsFold(p.Name, subject) {
			out = append(out, p)
		}
	}
	return out
}

func firstContaining(perms []identity.Permission, keyword string) *identity.Permission {
	for i := range perms {
		if containsFold(perms[i].Name, keyword) {
			return &perms[i]
		}
	}
	return nil
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
