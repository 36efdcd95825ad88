package authz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tagstone/tagstone/internal/identity"
)

// Action is one of the semantic verbs recognized in permission names.
type Action string

// Category-scoped actions plus the independent report verb.
const (
	ActionView   Action = "View"
	ActionEdit   Action = "Edit"
	ActionCreate Action = "Create"
	ActionDelete Action = "Delete"
	ActionReport Action = "Report"
)

// CategoryActions lists every action that scopes to a category.
func CategoryActions() []Action {
	return []Action{ActionView, ActionEdit, ActionCreate, ActionDelete, ActionReport}
}

// Grant is the parsed form of a permission name.
type Grant struct {
	Action  Action
	Subject string
	Global  bool
}

var (
	categoryNameRe = regexp.MustCompile(`^(Create|Delete|Edit|View) Under Category: "(.*)"$`)
	reportNameRe   = regexp.MustCompile(`^Report For Category: "(.*)"$`)
	quotedRe       = regexp.MustCompile(`"([\s\S]*)"`)
)

// ParseName classifies a permission name against the controlled template.
// Names outside the template are global capabilities whose subject is the
// literal name.
func ParseName(name string) Grant {
	if m := categoryNameRe.FindStringSubmatch(name); m != nil {
		return Grant{Action: Action(m[1]), Subject: m[2]}
	}
	if m := reportNameRe.FindStringSubmatch(name); m != nil {
		return Grant{Action: ActionReport, Subject: m[1]}
	}
	return Grant{Subject: name, Global: true}
}

// QuotedSubject extracts the quoted span from a category-scoped permission
// name, or "" when the name carries no quotes.
func QuotedSubject(name string) string {
	if m := quotedRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// CategoryPermissions generates the per-category grant set created alongside
// a new category.
func CategoryPermissions(categoryID int64, categoryName string) []identity.Permission {
	return []identity.Permission{
		{
			Name:        fmt.Sprintf("Create Under Category: %q", categoryName),
			Description: fmt.Sprintf("Gives permission to create permitted items under the %q asset category.", categoryName),
			CategoryID:  &categoryID,
		},
		{
			Name:        fmt.Sprintf("Delete Under Category: %q", categoryName),
			Description: fmt.Sprintf("Gives permission to delete permitted items under the %q asset category.", categoryName),
			CategoryID:  &categoryID,
		},
		{
			Name:        fmt.Sprintf("Edit Under Category: %q", categoryName),
			Description: fmt.Sprintf("Gives permission to edit permitted items under the %q asset category.", categoryName),
			CategoryID:  &categoryID,
		},
		{
			Name:        fmt.Sprintf("View Under Category: %q", categoryName),
			Description: fmt.Sprintf("Gives permission to view permitted items under the %q asset category.", categoryName),
			CategoryID:  &categoryID,
		},
		{
			Name:        fmt.Sprintf("Report For Category: %q", categoryName),
			Description: fmt.Sprintf("Gives permission to generate reports including %q and its dependents.", categoryName),
			CategoryID:  &categoryID,
		},
	}
}

// CategoriesFor collects the distinct category ids the permission set grants
// the given action on. Only category-scoped permissions participate; global
// grants are distinguished structurally by their nil category.
func CategoriesFor(perms []identity.Permission, action Action) []int64 {
	keyword := strings.ToLower(string(action))
	seen := make(map[int64]struct{})
	var ids []int64
	for _, p := range perms {
		if p.CategoryID == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(p.Name), keyword) {
			continue
		}
		if _, ok := seen[*p.CategoryID]; ok {
			continue
		}
		seen[*p.CategoryID] = struct{}{}
		ids = append(ids, *p.CategoryID)
	}
	return ids
}

// HasCapability reports whether any permission name mentions both the action
// and the subject, in either order, case-insensitively. Whitespace inside
// either input matches any whitespace run, so "Asset  Type" and "Asset Type"
// are the same subject.
func HasCapability(perms []identity.Permission, subject, action string) bool {
	re := capabilityPattern(subject, action)
	for _, p := range perms {
		if re.MatchString(p.Name) {
			return true
		}
	}
	return false
}

// HasAction is HasCapability specialized to a category action keyword.
func HasAction(perms []identity.Permission, subject string, action Action) bool {
	return HasCapability(perms, subject, string(action))
}

func capabilityPattern(subject, action string) *regexp.Regexp {
	a := flexible(action)
	s := flexible(subject)
	return regexp.MustCompile(`(?i)(` + a + `[\s\S]*` + s + `)|(` + s + `[\s\S]*` + a + `)`)
}

func flexible(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		fields[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(fields, `\s+`)
}
