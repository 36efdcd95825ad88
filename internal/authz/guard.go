package authz

import (
	"github.com/tagstone/tagstone/internal/identity"
)

// UserEditCaps captures which user-management capabilities a permission set
// grants, with the super variants subsuming the normal ones.
type UserEditCaps struct {
	Block       bool
	SuperBlock  bool
	Assign      bool
	SuperAssign bool
	Permit      bool
	SuperPermit bool
	Remove      bool
	SuperRemove bool
}

// EditUserCaps derives the user-management capability flags from a
// permission set.
func EditUserCaps(perms []identity.Permission) UserEditCaps {
	caps := UserEditCaps{
		SuperBlock:  HasCapability(perms, "User", "Super Block"),
		SuperAssign: HasCapability(perms, "Group", "Super Assign"),
		SuperPermit: HasCapability(perms, "User Permission", "Super Change"),
		SuperRemove: HasCapability(perms, "User", "Super Remove"),
	}
	caps.Block = caps.SuperBlock || HasCapability(perms, "User", "Block")
	caps.Assign = caps.SuperAssign || HasCapability(perms, "Group", "Assign")
	caps.Permit = caps.SuperPermit || HasCapability(perms, "User Permission", "Change")
	caps.Remove = caps.SuperRemove || HasCapability(perms, "User", "Remove")
	return caps
}

// CanActOn decides whether a requestor holding the given capability pair may
// act on a target of the given rank. Lower rank numbers carry more authority;
// a nil rank is the weakest standing except that a super-capable requestor
// with nil rank may still act on other nil-rank targets.
//
// Normal capability reaches strictly lower authority only; super capability
// also reaches peers.
func CanActOn(hasNormal, hasSuper bool, requestor, target *int) bool {
	if !hasNormal && !hasSuper {
		return false
	}
	if requestor == nil {
		return hasSuper && target == nil
	}
	if target == nil {
		return true
	}
	if hasSuper {
		return *target >= *requestor
	}
	return *target > *requestor
}

// CanAssignToGroup decides whether a requestor of the given rank may place a
// user into a destination group of the given rank. Destinations at or below
// the requestor's own authority are allowed; an unranked requestor may not
// assign at all, while an unranked destination is always reachable.
func CanAssignToGroup(requestor, destination *int) bool {
	if requestor == nil {
		return false
	}
	if destination == nil {
		return true
	}
	return *destination >= *requestor
}

// Rank resolves a user's authority rank from their group, nil when the user
// has no group.
func Rank(group *identity.Group) *int {
	if group == nil {
		return nil
	}
	p := group.Priority
	return &p
}
