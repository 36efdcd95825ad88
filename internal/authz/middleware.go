package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tagstone/tagstone/internal/observability"
)

// Engine bundles the session manager and permission resolver behind the
// request guards.
type Engine struct {
	sessions *SessionManager
	resolver *Resolver
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEngine builds the guard middleware stack.
func NewEngine(sessions *SessionManager, resolver *Resolver, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{sessions: sessions, resolver: resolver, metrics: metrics, logger: logger}
}

// Sessions exposes the underlying session manager for login and logout
// handlers.
func (e *Engine) Sessions() *SessionManager { return e.sessions }

// BearerToken extracts the bearer token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredential
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMalformedCredential
	}
	return strings.TrimSpace(token), nil
}

// Authenticate resolves the bearer token to a principal and attaches it to
// the request context. Requests without a valid live session never reach the
// next handler.
func (e *Engine) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil {
			e.deny(w, err)
			return
		}
		sess, user, err := e.sessions.Authenticate(r.Context(), token)
		if err != nil {
			e.deny(w, err)
			return
		}
		e.metrics.RecordAuthzDecision("allowed")
		ctx := WithPrincipal(r.Context(), &Principal{Session: sess, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithPermissions loads the principal's effective permission set. An empty
// set denies the request outright.
func (e *Engine) WithPermissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			e.deny(w, ErrMissingCredential)
			return
		}
		perms, err := e.resolver.PermissionsFor(r.Context(), principal.User)
		if err != nil {
			e.logger.Error("permission resolution failed",
				slog.Int64("user_id", principal.User.ID), slog.String("error", err.Error()))
			e.deny(w, err)
			return
		}
		if len(perms) == 0 {
			e.deny(w, ErrNoPermissions)
			return
		}
		principal.Permissions = perms
		next.ServeHTTP(w, r)
	})
}

// RequireCategories admits only principals holding the given action on at
// least one category, and scopes the request to those category ids.
func (e *Engine) RequireCategories(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				e.deny(w, ErrMissingCredential)
				return
			}
			ids := CategoriesFor(principal.Permissions, action)
			if len(ids) == 0 {
				e.deny(w, ErrNoCategoryAccess)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCategoryScope(r.Context(), ids)))
		})
	}
}

// RequireCapability admits only principals whose permission set grants the
// action on the subject.
func (e *Engine) RequireCapability(subject, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				e.deny(w, ErrMissingCredential)
				return
			}
			if !HasCapability(principal.Permissions, subject, action) {
				e.deny(w, ErrCapabilityDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserEditCaps derives the user-management capability flags and attaches
// them to the context. A principal holding none of them is denied.
func (e *Engine) WithUserEditCaps(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			e.deny(w, ErrMissingCredential)
			return
		}
		caps := EditUserCaps(principal.Permissions)
		if !caps.Block && !caps.Assign && !caps.Permit && !caps.Remove {
			e.deny(w, ErrCapabilityDenied)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserEditCaps(r.Context(), caps)))
	})
}

// RequireRemoval admits only principals allowed to remove users.
func (e *Engine) RequireRemoval(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			e.deny(w, ErrMissingCredential)
			return
		}
		caps := EditUserCaps(principal.Permissions)
		if !caps.Remove {
			e.deny(w, ErrCapabilityDenied)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUserEditCaps(r.Context(), caps)))
	})
}

func (e *Engine) deny(w http.ResponseWriter, err error) {
	e.metrics.RecordAuthzDecision(Outcome(err))
	Respond(w, err)
}

var (
	categoryScopeKey = contextKey{"authz.categories"}
	userEditCapsKey  = contextKey{"authz.user_edit_caps"}
)

func withCategoryScope(ctx context.Context, ids []int64) context.Context {
	return context.WithValue(ctx, categoryScopeKey, ids)
}

// CategoryScopeFromContext returns the category ids the request is scoped
// to, set by RequireCategories.
func CategoryScopeFromContext(ctx context.Context) ([]int64, bool) {
	ids, ok := ctx.Value(categoryScopeKey).([]int64)
	return ids, ok
}

func withUserEditCaps(ctx context.Context, caps UserEditCaps) context.Context {
	return context.WithValue(ctx, userEditCapsKey, caps)
}

// UserEditCapsFromContext returns the capability flags set by
// WithUserEditCaps or RequireRemoval.
func UserEditCapsFromContext(ctx context.Context) (UserEditCaps, bool) {
	caps, ok := ctx.Value(userEditCapsKey).(UserEditCaps)
	return caps, ok
}
