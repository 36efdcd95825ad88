package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrIdentityRejected indicates the presented credential could not be tied
// to a verified identity.
var ErrIdentityRejected = errors.New("identity token rejected")

// Identity is the verified external identity a login is granted against.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// Verifier checks an externally issued credential and extracts the identity
// behind it.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Identity, error)
}

// GoogleVerifier validates Google-issued credentials. ID tokens are checked
// against the configured OAuth client id; opaque access tokens fall back to
// the userinfo endpoint.
type GoogleVerifier struct {
	clientID string
}

// NewGoogleVerifier builds a verifier bound to an OAuth client id.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID}
}

// Verify resolves the credential to a verified identity.
func (v *GoogleVerifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if payload, err := idtoken.Validate(ctx, credential, v.clientID); err == nil {
		id := &Identity{
			Email:     strings.ToLower(claimString(payload.Claims, "email")),
			FirstName: claimString(payload.Claims, "given_name"),
			LastName:  claimString(payload.Claims, "family_name"),
		}
		if id.Email == "" {
			return nil, fmt.Errorf("%w: token carries no email", ErrIdentityRejected)
		}
		return id, nil
	}

	return v.verifyAccessToken(ctx, credential)
}

func (v *GoogleVerifier) verifyAccessToken(ctx context.Context, credential string) (*Identity, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential})
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(source))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityRejected, err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityRejected, err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("%w: userinfo carries no email", ErrIdentityRejected)
	}
	return &Identity{
		Email:     strings.ToLower(info.Email),
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}
