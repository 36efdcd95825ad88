package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
	_ "github.com/tagstone/tagstone/testing"
)

// fakeVerifier resolves known credentials to identities; anything else is
// rejected, mirroring the provider contract.
type fakeVerifier struct {
	ids map[string]*Identity
}

func (f *fakeVerifier) Verify(_ context.Context, credential string) (*Identity, error) {
	id, ok := f.ids[credential]
	if !ok {
		return nil, ErrIdentityRejected
	}
	return id, nil
}

type fakeIdentityStore struct {
	people       map[string]*identity.Person
	users        map[int64]*identity.User
	nameUpdates  int
	nextPersonID int64
	nextUserID   int64
}

func newFakeIdentityStore() *fakeIdentityStore {
	return &fakeIdentityStore{
		people: make(map[string]*identity.Person),
		users:  make(map[int64]*identity.User),
	}
}

func (f *fakeIdentityStore) FindOrCreatePerson(_ context.Context, email, firstName, lastName string) (*identity.Person, error) {
	if p, ok := f.people[email]; ok {
		return p, nil
	}
	f.nextPersonID++
	p := &identity.Person{ID: f.nextPersonID, Email: email, FirstName: firstName, LastName: lastName}
	f.people[email] = p
	return p, nil
}

func (f *fakeIdentityStore) UpdatePersonName(_ context.Context, id int64, firstName, lastName string) error {
	f.nameUpdates++
	for _, p := range f.people {
		if p.ID == id {
			p.FirstName, p.LastName = firstName, lastName
		}
	}
	return nil
}

func (f *fakeIdentityStore) FindOrCreateUser(_ context.Context, personID int64) (*identity.User, error) {
	if u, ok := f.users[personID]; ok {
		return u, nil
	}
	f.nextUserID++
	u := &identity.User{ID: f.nextUserID, PersonID: personID}
	f.users[personID] = u
	return u, nil
}

type memorySessionStore struct {
	byToken map[string]*identity.Session
	nextID  int64
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{byToken: make(map[string]*identity.Session)}
}

func (m *memorySessionStore) FindSessionByToken(_ context.Context, token string) (*identity.Session, *identity.User, error) {
	sess, ok := m.byToken[token]
	if !ok {
		return nil, nil, nil
	}
	return sess, &identity.User{ID: sess.UserID}, nil
}

func (m *memorySessionStore) ClearSessionToken(_ context.Context, token string) error {
	delete(m.byToken, token)
	return nil
}

func (m *memorySessionStore) ClearSessionTokenByID(_ context.Context, id int64) error {
	for token, sess := range m.byToken {
		if sess.ID == id {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memorySessionStore) FindOrCreateSession(_ context.Context, issue identity.Session) (*identity.Session, error) {
	for _, sess := range m.byToken {
		if sess.Email == issue.Email && sess.UserID == issue.UserID {
			return sess, nil
		}
	}
	m.nextID++
	issue.ID = m.nextID
	m.byToken[issue.Token] = &issue
	return &issue, nil
}

type loginFixture struct {
	handler  *Handler
	store    *fakeIdentityStore
	verifier *fakeVerifier
	sessions *memorySessionStore
	throttle *Throttle
	redis    *miniredis.Miniredis
}

const goodCredential = "google-id-token"

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := newFakeIdentityStore()
	sessions := newMemorySessionStore()
	verifier := &fakeVerifier{ids: map[string]*Identity{
		goodCredential: {Email: "kim@example.com", FirstName: "Kim", LastName: "Lee"},
	}}

	mgr := authz.NewSessionManager(sessions, []byte("test-secret"), 24*time.Hour, logger, nil)
	service := NewService(store, mgr, verifier, logger)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	throttle := NewThrottle(client, 10, 15*time.Minute)

	return &loginFixture{
		handler:  NewHandler(logger, service, throttle),
		store:    store,
		verifier: verifier,
		sessions: sessions,
		throttle: throttle,
		redis:    mr,
	}
}

func doLogin(t *testing.T, fx *loginFixture, credential, accessToken string) *httptest.ResponseRecorder {
	t.Helper()
	payload := map[string]string{"credential": credential}
	if accessToken != "" {
		payload["accessToken"] = accessToken
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	w := httptest.NewRecorder()
	fx.handler.Login(w, r)
	return w
}

func TestLoginProvisionsAndIssuesToken(t *testing.T) {
	fx := newLoginFixture(t)

	w := doLogin(t, fx, goodCredential, "")
	require.Equal(t, http.StatusOK, w.Code, "a credential alone is a complete login request")

	var result LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "kim@example.com", result.Email)
	assert.Equal(t, "Kim", result.FirstName)

	require.Contains(t, fx.store.people, "kim@example.com")
	assert.Len(t, fx.store.users, 1)
}

func TestLoginReturnsSameTokenWhileSessionLive(t *testing.T) {
	fx := newLoginFixture(t)

	var first, second LoginResult
	w := doLogin(t, fx, goodCredential, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	w = doLogin(t, fx, goodCredential, "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.Token, second.Token)
}

func TestLoginFallsBackToAccessToken(t *testing.T) {
	fx := newLoginFixture(t)
	fx.verifier.ids["google-access-token"] = &Identity{Email: "kim@example.com", FirstName: "Kim", LastName: "Lee"}

	w := doLogin(t, fx, "opaque-unverifiable", "google-access-token")
	require.Equal(t, http.StatusOK, w.Code, "a rejected credential falls back to the access token")

	var result LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "kim@example.com", result.Email)
}

func TestLoginRefreshesChangedNames(t *testing.T) {
	fx := newLoginFixture(t)
	doLogin(t, fx, goodCredential, "")

	fx.verifier.ids[goodCredential] = &Identity{Email: "kim@example.com", FirstName: "Kimberly", LastName: "Lee"}
	w := doLogin(t, fx, goodCredential, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, fx.store.nameUpdates)
	assert.Equal(t, "Kimberly", fx.store.people["kim@example.com"].FirstName)
}

func TestLoginRejectsBadBody(t *testing.T) {
	fx := newLoginFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	fx.handler.Login(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doLogin(t, fx, "", "google-access-token")
	assert.Equal(t, http.StatusBadRequest, w.Code, "the credential is required; the access token alone is not")
}

func TestLoginRejectsUnverifiedIdentity(t *testing.T) {
	fx := newLoginFixture(t)

	w := doLogin(t, fx, "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doLogin(t, fx, "forged", "also-forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "an unverifiable fallback does not help")
}

func TestLoginRejectsBlockedUser(t *testing.T) {
	fx := newLoginFixture(t)
	doLogin(t, fx, goodCredential, "")
	for _, u := range fx.store.users {
		u.Blocked = true
	}
	fx.sessions.byToken = map[string]*identity.Session{}

	w := doLogin(t, fx, goodCredential, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginThrottled(t *testing.T) {
	fx := newLoginFixture(t)

	for i := 0; i < 10; i++ {
		w := doLogin(t, fx, "forged", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w := doLogin(t, fx, "forged", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLoginResetsThrottleOnSuccess(t *testing.T) {
	fx := newLoginFixture(t)

	delete(fx.verifier.ids, goodCredential)
	for i := 0; i < 9; i++ {
		doLogin(t, fx, goodCredential, "")
	}
	fx.verifier.ids[goodCredential] = &Identity{Email: "kim@example.com", FirstName: "Kim", LastName: "Lee"}
	w := doLogin(t, fx, goodCredential, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, fx.redis.Exists(fx.throttle.key(goodCredential)))
}

func TestLogout(t *testing.T) {
	fx := newLoginFixture(t)
	w := doLogin(t, fx, goodCredential, "")
	var result LoginResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer "+result.Token)
	w2 := httptest.NewRecorder()
	fx.handler.Logout(w2, r)
	assert.Equal(t, http.StatusNoContent, w2.Code)
	assert.Empty(t, fx.sessions.byToken)
}

func TestLogoutWithoutTokenIsNoOp(t *testing.T) {
	fx := newLoginFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	fx.handler.Logout(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code, "logout always succeeds")

	r = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	fx.handler.Logout(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
