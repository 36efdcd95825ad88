package authz

import (
	"errors"
	"net/http"

	"github.com/tagstone/tagstone/internal/platform/httpx"
)

// Authorization failures. Each maps to a client-visible unauthorized
// response with a human-readable reason; none is ever retried by callers.
var (
	ErrMissingCredential   = errors.New("no authorization header presented")
	ErrMalformedCredential = errors.New("unrecognized authorization scheme")
	ErrPrincipalBlocked    = errors.New("user is blocked")
	ErrTokenExpired        = errors.New("expired token; log out and log in again")
	ErrNoPermissions       = errors.New("user does not have any permissions")
	ErrNoCategoryAccess    = errors.New("user has no category access for this action")
	ErrCapabilityDenied    = errors.New("user does not have the required permission")
	ErrRankInsufficient    = errors.New("target outranks the requesting user")
)

// System failures. These surface as generic server errors and roll back any
// in-flight mutation; ErrSessionResolution is retried internally only.
var (
	ErrSessionResolution = errors.New("could not resolve session")
	ErrPermissionLookup  = errors.New("failed to retrieve permissions")
)

// Respond writes the HTTP representation of an engine error.
func Respond(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrMalformedCredential),
		errors.Is(err, ErrPrincipalBlocked),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrNoPermissions),
		errors.Is(err, ErrNoCategoryAccess),
		errors.Is(err, ErrCapabilityDenied),
		errors.Is(err, ErrRankInsufficient):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// Outcome labels an engine error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, ErrMalformedCredential):
		return "malformed_credential"
	case errors.Is(err, ErrPrincipalBlocked):
		return "blocked"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrNoPermissions):
		return "no_permissions"
	case errors.Is(err, ErrNoCategoryAccess):
		return "no_category_access"
	case errors.Is(err, ErrCapabilityDenied):
		return "capability_denied"
	case errors.Is(err, ErrRankInsufficient):
		return "rank_insufficient"
	default:
		return "error"
	}
}
