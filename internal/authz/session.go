package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tagstone/tagstone/internal/identity"
)

// maxSweepAttempts bounds the inline expiry sweep inside Authenticate. A
// token can be re-issued while its expired predecessor row still holds it,
// so one lookup can land on a stale row more than once.
const maxSweepAttempts = 10

// SessionStore is the persistence surface the session manager needs.
type SessionStore interface {
	FindSessionByToken(ctx context.Context, token string) (*identity.Session, *identity.User, error)
	ClearSessionToken(ctx context.Context, token string) error
	ClearSessionTokenByID(ctx context.Context, id int64) error
	FindOrCreateSession(ctx context.Context, issue identity.Session) (*identity.Session, error)
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionManager issues, validates, and invalidates bearer-token sessions.
// Tokens are HS256 JWTs carrying the email and a unique id; expiry lives on
// the session row, not in the token.
type SessionManager struct {
	store  SessionStore
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionManager builds a session manager. A nil clock defaults to
// time.Now.
func NewSessionManager(store SessionStore, secret []byte, ttl time.Duration, logger *slog.Logger, now func() time.Time) *SessionManager {
	if now == nil {
		now = time.Now
	}
	return &SessionManager{store: store, secret: secret, ttl: ttl, logger: logger, now: now}
}

// Login returns the live session token for the email, minting and persisting
// a fresh one when no live session exists. A lookup can race the sweep and
// land on a row that expired but still holds a token; such rows are cleared
// and the issue retried, at most maxSweepAttempts times.
func (m *SessionManager) Login(ctx context.Context, email string, userID int64) (*identity.Session, error) {
	for attempt := 0; attempt < maxSweepAttempts; attempt++ {
		token, err := m.mint(email)
		if err != nil {
			return nil, fmt.Errorf("mint session token: %w", err)
		}
		sess, err := m.store.FindOrCreateSession(ctx, identity.Session{
			Token:          token,
			Email:          email,
			ExpirationDate: m.now().Add(m.ttl),
			UserID:         userID,
		})
		if err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
		if sess.ExpirationDate.After(m.now()) {
			return sess, nil
		}
		if err := m.store.ClearSessionTokenByID(ctx, sess.ID); err != nil {
			m.logger.Warn("failed to clear expired session",
				slog.Int64("session_id", sess.ID), slog.String("error", err.Error()))
		}
	}
	return nil, ErrSessionResolution
}

// Logout invalidates the token. Empty, unknown and already-cleared tokens
// are a no-op success; logout is idempotent.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.ClearSessionToken(ctx, token); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	return nil
}

// Authenticate resolves a raw bearer token to its session and user. Expired
// rows encountered along the way have their tokens cleared and the lookup is
// retried, at most maxSweepAttempts times; a blocked user's session is
// invalidated on sight.
func (m *SessionManager) Authenticate(ctx context.Context, token string) (*identity.Session, *identity.User, error) {
	if token == "" {
		return nil, nil, ErrMissingCredential
	}
	if _, err := m.verify(token); err != nil {
		return nil, nil, ErrMalformedCredential
	}

	for attempt := 0; attempt < maxSweepAttempts; attempt++ {
		sess, user, err := m.store.FindSessionByToken(ctx, token)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSessionResolution, err)
		}
		if sess == nil {
			return nil, nil, ErrTokenExpired
		}

		if user.Blocked {
			if err := m.store.ClearSessionTokenByID(ctx, sess.ID); err != nil {
				m.logger.Warn("failed to invalidate blocked user session",
					slog.Int64("session_id", sess.ID), slog.String("error", err.Error()))
			}
			return nil, nil, ErrPrincipalBlocked
		}

		if !sess.ExpirationDate.After(m.now()) {
			if err := m.store.ClearSessionTokenByID(ctx, sess.ID); err != nil {
				m.logger.Warn("failed to clear expired session",
					slog.Int64("session_id", sess.ID), slog.String("error", err.Error()))
			}
			continue
		}

		return sess, user, nil
	}

	return nil, nil, ErrSessionResolution
}

func (m *SessionManager) mint(email string) (string, error) {
	now := m.now()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *SessionManager) verify(token string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}
