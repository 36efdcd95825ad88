package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tagstone/tagstone/internal/authz"
	"github.com/tagstone/tagstone/internal/identity"
)

// IdentityStore is the persistence surface login provisioning needs.
type IdentityStore interface {
	FindOrCreatePerson(ctx context.Context, email, firstName, lastName string) (*identity.Person, error)
	UpdatePersonName(ctx context.Context, id int64, firstName, lastName string) error
	FindOrCreateUser(ctx context.Context, personID int64) (*identity.User, error)
}

// Service exchanges verified external identities for session tokens,
// provisioning the person and user records on first login.
type Service struct {
	store    IdentityStore
	sessions *authz.SessionManager
	verifier Verifier
	logger   *slog.Logger
}

// NewService constructs the auth service.
func NewService(store IdentityStore, sessions *authz.SessionManager, verifier Verifier, logger *slog.Logger) *Service {
	return &Service{store: store, sessions: sessions, verifier: verifier, logger: logger}
}

// LoginResult is the session handed back after a successful login.
type LoginResult struct {
	Token     string `json:"token"`
	PersonID  int64  `json:"personId"`
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Login verifies the credential, provisions the account on first contact,
// and returns the live session token. When the credential is rejected and an
// access token accompanies it, the access token is tried as a fallback. A
// blocked user never gets a session.
func (s *Service) Login(ctx context.Context, credential, accessToken string) (*LoginResult, error) {
	id, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		if accessToken == "" {
			return nil, err
		}
		if id, err = s.verifier.Verify(ctx, accessToken); err != nil {
			return nil, err
		}
	}

	person, err := s.store.FindOrCreatePerson(ctx, id.Email, id.FirstName, id.LastName)
	if err != nil {
		return nil, fmt.Errorf("provision person: %w", err)
	}
	if namesChanged(person, id) {
		if err := s.store.UpdatePersonName(ctx, person.ID, id.FirstName, id.LastName); err != nil {
			return nil, fmt.Errorf("refresh person names: %w", err)
		}
		person.FirstName = id.FirstName
		person.LastName = id.LastName
	}

	user, err := s.store.FindOrCreateUser(ctx, person.ID)
	if err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}
	if user.Blocked {
		return nil, authz.ErrPrincipalBlocked
	}

	sess, err := s.sessions.Login(ctx, id.Email, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", slog.Int64("user_id", user.ID), slog.String("email", id.Email))
	return &LoginResult{
		Token:     sess.Token,
		PersonID:  person.ID,
		UserID:    user.ID,
		Email:     id.Email,
		FirstName: person.FirstName,
		LastName:  person.LastName,
	}, nil
}

// Logout invalidates the session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Logout(ctx, token)
}

func namesChanged(person *identity.Person, id *Identity) bool {
	if id.FirstName == "" && id.LastName == "" {
		return false
	}
	return person.FirstName != id.FirstName || person.LastName != id.LastName
}
