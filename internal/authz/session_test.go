package authz

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstone/tagstone/internal/identity"
)

type fakeSessionStore struct {
	byToken map[string]*identity.Session
	users   map[int64]*identity.User

	created     []identity.Session
	clearedByID []int64
	findCalls   int

	// when set, FindSessionByToken keeps returning this row even after a
	// clear, mimicking duplicate rows holding the same token
	sticky *identity.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		byToken: make(map[string]*identity.Session),
		users:   make(map[int64]*identity.User),
	}
}

func (f *fakeSessionStore) FindSessionByToken(_ context.Context, token string) (*identity.Session, *identity.User, error) {
	f.findCalls++
	if f.sticky != nil {
		return f.sticky, f.users[f.sticky.UserID], nil
	}
	sess, ok := f.byToken[token]
	if !ok {
		return nil, nil, nil
	}
	return sess, f.users[sess.UserID], nil
}

func (f *fakeSessionStore) ClearSessionToken(_ context.Context, token string) error {
	delete(f.byToken, token)
	return nil
}

func (f *fakeSessionStore) ClearSessionTokenByID(_ context.Context, id int64) error {
	f.clearedByID = append(f.clearedByID, id)
	for token, sess := range f.byToken {
		if sess.ID == id {
			delete(f.byToken, token)
		}
	}
	return nil
}

func (f *fakeSessionStore) FindOrCreateSession(_ context.Context, issue identity.Session) (*identity.Session, error) {
	for _, sess := range f.byToken {
		if sess.Email == issue.Email && sess.UserID == issue.UserID {
			return sess, nil
		}
	}
	issue.ID = int64(len(f.created) + 1)
	f.created = append(f.created, issue)
	f.byToken[issue.Token] = &issue
	return &issue, nil
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(store SessionStore) *SessionManager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSessionManager(store, []byte("test-secret"), 24*time.Hour, logger, func() time.Time { return testClock })
}

func TestLoginMintsSignedToken(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	sess, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	assert.Equal(t, testClock.Add(24*time.Hour), sess.ExpirationDate)

	var claims sessionClaims
	_, err = jwt.ParseWithClaims(sess.Token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID, "each token carries a unique id")
}

func TestLoginReusesLiveSession(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	first, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)
	second, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)

	assert.Equal(t, first.Token, second.Token)
	assert.Len(t, store.created, 1)
}

func TestLoginReissuesExpiredSession(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	stale := &identity.Session{
		ID: 41, Token: "stale-token", Email: "kim@example.com",
		ExpirationDate: testClock.Add(-time.Minute), UserID: 1,
	}
	store.byToken["stale-token"] = stale

	sess, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)
	assert.NotEqual(t, "stale-token", sess.Token)
	assert.True(t, sess.ExpirationDate.After(testClock))
	assert.Contains(t, store.clearedByID, int64(41), "the stale row loses its token")
}

func TestLogout(t *testing.T) {
	store := newFakeSessionStore()
	mgr := newTestManager(store)

	assert.NoError(t, mgr.Logout(context.Background(), ""), "an empty token is a no-op")
	assert.NoError(t, mgr.Logout(context.Background(), "unknown-token"), "logout is idempotent")
}

func TestAuthenticateHappyPath(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	issued, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)

	sess, user, err := mgr.Authenticate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.ID, sess.ID)
	assert.EqualValues(t, 1, user.ID)
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	mgr := newTestManager(newFakeSessionStore())

	_, _, err := mgr.Authenticate(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingCredential)

	_, _, err = mgr.Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	store := newFakeSessionStore()
	mgr := newTestManager(store)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{Email: "kim@example.com"})
	token, err := foreign.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, _, err = mgr.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrMalformedCredential)
}

func TestAuthenticateUnknownToken(t *testing.T) {
	store := newFakeSessionStore()
	mgr := newTestManager(store)

	token, err := mgr.mint("kim@example.com")
	require.NoError(t, err)

	_, _, err = mgr.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAuthenticateBlockedUserInvalidatesSession(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1, Blocked: true}
	mgr := newTestManager(store)

	issued, err := mgr.Login(context.Background(), "kim@example.com", 1)
	require.NoError(t, err)

	_, _, err = mgr.Authenticate(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrPrincipalBlocked)
	assert.Equal(t, []int64{issued.ID}, store.clearedByID, "the blocked user's session token is cleared")
}

func TestAuthenticateClearsExpiredThenReports(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	token, err := mgr.mint("kim@example.com")
	require.NoError(t, err)
	store.byToken[token] = &identity.Session{
		ID: 41, Token: token, Email: "kim@example.com",
		ExpirationDate: testClock.Add(-time.Minute), UserID: 1,
	}

	_, _, err = mgr.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, []int64{41}, store.clearedByID)
	assert.Equal(t, 2, store.findCalls, "one stale hit, one retry that misses")
}

func TestAuthenticateSweepIsBounded(t *testing.T) {
	store := newFakeSessionStore()
	store.users[1] = &identity.User{ID: 1}
	mgr := newTestManager(store)

	token, err := mgr.mint("kim@example.com")
	require.NoError(t, err)
	store.sticky = &identity.Session{
		ID: 41, Token: token, Email: "kim@example.com",
		ExpirationDate: testClock.Add(-time.Minute), UserID: 1,
	}

	_, _, err = mgr.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, ErrSessionResolution)
	assert.Equal(t, maxSweepAttempts, store.findCalls)
}
