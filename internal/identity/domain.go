package identity

import "time"

// Person is the directory record behind a user account.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}

// User is the acting account for a person. GroupID and GroupExpiration are
// nil when the user has no group or an open-ended membership respectively.
type User struct {
	ID              int64
	PersonID        int64
	GroupID         *int64
	GroupExpiration *time.Time
	Blocked         bool
}

// Group is a named role. Lower Priority means higher authority; priority 0
// is reserved for the unremovable Super User group. Expiration, when set,
// is the default membership expiry applied on assignment.
type Group struct {
	ID         int64
	Name       string
	Priority   int
	Expiration *time.Time
}

// Permission is an atomic grant. CategoryID is nil for global capabilities
// and set for category-scoped CRUD/report grants.
type Permission struct {
	ID          int64
	Name        string
	Description string
	CategoryID  *int64
}

// Category groups domain entities and scopes CRUD/report permissions.
type Category struct {
	ID          int64
	Name        string
	Description string
}

// Session is a bearer-token login. An empty Token marks a session that was
// logged out or swept; the row itself is kept for audit history.
type Session struct {
	ID             int64
	Token          string
	Email          string
	ExpirationDate time.Time
	UserID         int64
}

// SuperUserGroup is the reserved name of the priority-0 group.
const SuperUserGroup = "Super User"
