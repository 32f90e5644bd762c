// Package identity abstracts the external identity provider that issues and
// verifies the bearer tokens used by the HTTP API.
//
// The service never stores credentials itself; sign-up, sign-in, and token
// verification are all delegated to the provider.
package identity

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by providers.
var (
	// ErrUnauthorized means the token is missing, expired, or invalid.
	ErrUnauthorized = errors.New("identity: unauthorized")

	// ErrInvalidCredentials means a sign-in was rejected.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")

	// ErrUserExists means a sign-up collided with an existing account.
	ErrUserExists = errors.New("identity: user already exists")
)

// Session is an authenticated user session.
type Session struct {
	// UserID is the provider's stable identifier for the account. It is
	// the owner key for all stored records.
	UserID string `json:"user_id"`

	// Email is the account's email address.
	Email string `json:"email"`

	// AccessToken is the bearer token for API requests.
	AccessToken string `json:"access_token"`

	// RefreshToken obtains a new access token once this one expires.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is when the access token stops being valid.
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider is the external identity service.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Authenticate resolves a bearer token into the session it belongs
	// to. Returns ErrUnauthorized for unknown, expired, or malformed
	// tokens.
	Authenticate(ctx context.Context, accessToken string) (Session, error)

	// SignUp creates an account and returns its initial session.
	SignUp(ctx context.Context, email, password string) (Session, error)

	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, email, password string) (Session, error)

	// SignOut revokes the session behind the token. Revoking an already
	// dead token is not an error.
	SignOut(ctx context.Context, accessToken string) error
}
