// Package httpapi exposes the transcription service over a JSON REST API.
//
// All /v1 routes except the auth endpoints require a bearer token resolved
// through the configured identity provider. Operational endpoints
// (/healthz, /readyz, /metrics) are unauthenticated.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxnote/voxnote/internal/billing"
	"github.com/voxnote/voxnote/internal/health"
	"github.com/voxnote/voxnote/internal/identity"
	"github.com/voxnote/voxnote/internal/observe"
	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/search"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/transcribe"
)

// defaultShutdownTimeout bounds graceful shutdown when none is configured.
const defaultShutdownTimeout = 10 * time.Second

// defaultSearchTopK is the result cap for search queries when none is
// configured.
const defaultSearchTopK = 10

// Deps collects everything the server needs. All fields except Billing and
// Search are required.
type Deps struct {
	Identity identity.Provider
	Records  store.RecordStore
	Tags     store.TagStore
	Ledger   *quota.Ledger

	// NewOrchestrator builds a fresh orchestrator per submission so that
	// concurrent uploads from different users do not serialise on one
	// instance's in-flight lock.
	NewOrchestrator func() *transcribe.Orchestrator

	// Search answers transcript queries. Nil disables the search endpoint.
	Search search.Index

	// Billing lists payment events. Nil disables the billing endpoint.
	Billing billing.History

	Health  *health.Handler
	Metrics *observe.Metrics
}

// Options tunes server behaviour.
type Options struct {
	// ListenAddr is the TCP address to listen on (e.g. ":8080").
	ListenAddr string

	// MaxUploadBytes caps multipart upload memory and request body size.
	MaxUploadBytes int64

	// SearchTopK caps search results per query. Zero means 10.
	SearchTopK int

	// DefaultLanguage is used when a submission carries no language code.
	DefaultLanguage string

	// ShutdownTimeout bounds graceful shutdown. Zero means 10s.
	ShutdownTimeout time.Duration
}

// Server is the voxnote HTTP API server.
type Server struct {
	deps Deps
	opts Options
}

// New creates a Server. The zero values of opts are filled with defaults.
func New(deps Deps, opts Options) *Server {
	if opts.SearchTopK <= 0 {
		opts.SearchTopK = defaultSearchTopK
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "auto"
	}
	return &Server{deps: deps, opts: opts}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Operational endpoints, unauthenticated and unmetered.
	if s.deps.Health != nil {
		s.deps.Health.Register(mux)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	// handle wraps a route with the observability middleware, using the
	// route pattern (not the raw path) as the metric label.
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, observe.Middleware(s.deps.Metrics, pattern)(h))
	}
	// authed additionally requires a valid bearer token.
	authed := func(pattern string, h http.HandlerFunc) {
		handle(pattern, s.requireSession(h))
	}

	// Auth.
	handle("POST /v1/auth/signup", s.handleSignUp)
	handle("POST /v1/auth/signin", s.handleSignIn)
	authed("POST /v1/auth/signout", s.handleSignOut)

	// Transcriptions.
	authed("POST /v1/transcriptions", s.handleSubmit)
	authed("GET /v1/transcriptions", s.handleList)
	authed("GET /v1/transcriptions/search", s.handleSearch)
	authed("GET /v1/transcriptions/{id}", s.handleGet)
	authed("PATCH /v1/transcriptions/{id}", s.handlePatch)
	authed("DELETE /v1/transcriptions/{id}", s.handleDelete)
	authed("POST /v1/transcriptions/{id}/summary", s.handleSummary)

	// Quota.
	authed("GET /v1/quota", s.handleQuota)

	// Tags.
	authed("GET /v1/tags", s.handleListTags)
	authed("POST /v1/tags", s.handleCreateTag)
	authed("PATCH /v1/tags/{id}", s.handleUpdateTag)
	authed("DELETE /v1/tags/{id}", s.handleDeleteTag)

	// Billing.
	authed("GET /v1/billing/history", s.handleBillingHistory)

	return mux
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully within the configured timeout.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.ListenAddr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", s.opts.ListenAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		slog.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
