package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Compile-time interface assertion.
var _ Provider = (*RESTProvider)(nil)

const (
	defaultTimeout = 10 * time.Second

	signUpEndpoint  = "/auth/v1/signup"
	tokenEndpoint   = "/auth/v1/token?grant_type=password"
	signOutEndpoint = "/auth/v1/logout"
	userEndpoint    = "/auth/v1/user"
	healthEndpoint  = "/auth/v1/health"
)

// RESTOption is a functional option for configuring a RESTProvider.
type RESTOption func(*RESTProvider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 10s.
func WithTimeout(d time.Duration) RESTOption {
	return func(p *RESTProvider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely. Mainly for tests.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(p *RESTProvider) {
		p.httpClient = c
	}
}

// RESTProvider implements Provider against a GoTrue-compatible identity
// service. It is safe for concurrent use.
type RESTProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTProvider creates a RESTProvider targeting the identity service at
// baseURL. apiKey is the project key sent with every request; it must not be
// empty.
func NewRESTProvider(baseURL, apiKey string, opts ...RESTOption) (*RESTProvider, error) {
	if baseURL == "" {
		return nil, errors.New("identity: baseURL must not be empty")
	}
	if apiKey == "" {
		return nil, errors.New("identity: apiKey must not be empty")
	}
	p := &RESTProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

// credentialsRequest is the JSON body for sign-up and sign-in.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// sessionResponse is the JSON body returned by the token and signup
// endpoints.
type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// userResponse is the JSON body returned by GET /auth/v1/user.
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticate implements Provider.
func (p *RESTProvider) Authenticate(ctx context.Context, accessToken string) (Session, error) {
	if accessToken == "" {
		return Session{}, ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+userEndpoint, nil)
	if err != nil {
		return Session{}, fmt.Errorf("identity: create user request: %w", err)
	}
	p.setHeaders(req, accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("identity: GET %s: %w", userEndpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Session{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return Session{}, fmt.Errorf("identity: GET %s returned status %d", userEndpoint, resp.StatusCode)
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return Session{}, fmt.Errorf("identity: decode user response: %w", err)
	}
	if user.ID == "" {
		return Session{}, ErrUnauthorized
	}

	return Session{
		UserID:      user.ID,
		Email:       user.Email,
		AccessToken: accessToken,
	}, nil
}

// SignUp implements Provider.
func (p *RESTProvider) SignUp(ctx context.Context, email, password string) (Session, error) {
	resp, err := p.postCredentials(ctx, signUpEndpoint, email, password)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusConflict:
		return Session{}, ErrUserExists
	case resp.StatusCode != http.StatusOK:
		return Session{}, fmt.Errorf("identity: POST %s returned status %d", signUpEndpoint, resp.StatusCode)
	}

	return decodeSession(resp.Body)
}

// SignIn implements Provider.
func (p *RESTProvider) SignIn(ctx context.Context, email, password string) (Session, error) {
	resp, err := p.postCredentials(ctx, tokenEndpoint, email, password)
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return Session{}, ErrInvalidCredentials
	case resp.StatusCode != http.StatusOK:
		return Session{}, fmt.Errorf("identity: POST %s returned status %d", tokenEndpoint, resp.StatusCode)
	}

	return decodeSession(resp.Body)
}

// SignOut implements Provider.
func (p *RESTProvider) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+signOutEndpoint, nil)
	if err != nil {
		return fmt.Errorf("identity: create logout request: %w", err)
	}
	p.setHeaders(req, accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: POST %s: %w", signOutEndpoint, err)
	}
	defer resp.Body.Close()

	// A dead token is already signed out.
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK ||
		resp.StatusCode == http.StatusUnauthorized {
		return nil
	}
	return fmt.Errorf("identity: POST %s returned status %d", signOutEndpoint, resp.StatusCode)
}

// Health probes the identity service's health endpoint. Suitable as a
// readiness check.
func (p *RESTProvider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("identity: create health request: %w", err)
	}
	p.setHeaders(req, "")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: GET %s: %w", healthEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("identity: GET %s returned status %d", healthEndpoint, resp.StatusCode)
	}
	return nil
}

// postCredentials sends an email/password JSON body to the given endpoint.
func (p *RESTProvider) postCredentials(ctx context.Context, endpoint, email, password string) (*http.Response, error) {
	data, err := json.Marshal(credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("identity: marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("identity: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.setHeaders(req, "")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: POST %s: %w", endpoint, err)
	}
	return resp, nil
}

// setHeaders attaches the project key and, when non-empty, the bearer token.
func (p *RESTProvider) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("apikey", p.apiKey)
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// decodeSession parses a token/signup response body into a Session.
func decodeSession(body io.Reader) (Session, error) {
	var sr sessionResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return Session{}, fmt.Errorf("identity: decode session response: %w", err)
	}
	if sr.AccessToken == "" || sr.User.ID == "" {
		return Session{}, errors.New("identity: session response missing access token or user id")
	}
	return Session{
		UserID:       sr.User.ID,
		Email:        sr.User.Email,
		AccessToken:  sr.AccessToken,
		RefreshToken: sr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(sr.ExpiresIn) * time.Second),
	}, nil
}
