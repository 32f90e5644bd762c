// Package mock provides a test double for the identity.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxnote/voxnote/internal/identity"
)

// Provider is a mock implementation of identity.Provider backed by a static
// token table.
type Provider struct {
	mu sync.Mutex

	// Sessions maps access tokens to the sessions Authenticate returns.
	// Unknown tokens yield identity.ErrUnauthorized.
	Sessions map[string]identity.Session

	// Err, if non-nil, is returned by every method.
	Err error

	// Authenticated records every token passed to Authenticate.
	Authenticated []string

	// SignedOut records every token passed to SignOut.
	SignedOut []string
}

// Compile-time interface check.
var _ identity.Provider = (*Provider)(nil)

// Authenticate implements identity.Provider.
func (p *Provider) Authenticate(ctx context.Context, accessToken string) (identity.Session, error) {
	p.mu.Lock()
	p.Authenticated = append(p.Authenticated, accessToken)
	p.mu.Unlock()

	if p.Err != nil {
		return identity.Session{}, p.Err
	}
	sess, ok := p.Sessions[accessToken]
	if !ok {
		return identity.Session{}, identity.ErrUnauthorized
	}
	return sess, nil
}

// SignUp implements identity.Provider. The new session's token is the email
// prefixed with "token-".
func (p *Provider) SignUp(ctx context.Context, email, password string) (identity.Session, error) {
	if p.Err != nil {
		return identity.Session{}, p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sess := range p.Sessions {
		if sess.Email == email {
			return identity.Session{}, identity.ErrUserExists
		}
	}
	sess := identity.Session{
		UserID:      "user-" + email,
		Email:       email,
		AccessToken: "token-" + email,
	}
	if p.Sessions == nil {
		p.Sessions = make(map[string]identity.Session)
	}
	p.Sessions[sess.AccessToken] = sess
	return sess, nil
}

// SignIn implements identity.Provider.
func (p *Provider) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if p.Err != nil {
		return identity.Session{}, p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sess := range p.Sessions {
		if sess.Email == email {
			return sess, nil
		}
	}
	return identity.Session{}, identity.ErrInvalidCredentials
}

// SignOut implements identity.Provider.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SignedOut = append(p.SignedOut, accessToken)
	delete(p.Sessions, accessToken)
	return p.Err
}
