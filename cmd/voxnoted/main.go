// Command voxnoted is the voxnote transcription service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxnote/voxnote/internal/billing"
	"github.com/voxnote/voxnote/internal/config"
	"github.com/voxnote/voxnote/internal/health"
	"github.com/voxnote/voxnote/internal/httpapi"
	"github.com/voxnote/voxnote/internal/identity"
	"github.com/voxnote/voxnote/internal/observe"
	"github.com/voxnote/voxnote/internal/plan"
	"github.com/voxnote/voxnote/internal/quota"
	"github.com/voxnote/voxnote/internal/search"
	"github.com/voxnote/voxnote/internal/store"
	"github.com/voxnote/voxnote/internal/transcribe"
	"github.com/voxnote/voxnote/internal/upload"
	"github.com/voxnote/voxnote/pkg/audio"
	"github.com/voxnote/voxnote/pkg/provider/embeddings"
	oaiembed "github.com/voxnote/voxnote/pkg/provider/embeddings/openai"
	"github.com/voxnote/voxnote/pkg/provider/llm"
	oaillm "github.com/voxnote/voxnote/pkg/provider/llm/openai"
	"github.com/voxnote/voxnote/pkg/provider/stt"
	oaistt "github.com/voxnote/voxnote/pkg/provider/stt/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxnoted: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxnoted: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("voxnoted starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxnote"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Database ──────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.Database.PostgresDSN)
	if err != nil {
		slog.Error("failed to create database pool", "err", err)
		return 1
	}
	defer pool.Close()

	records := store.NewPostgresStore(pool)
	if err := records.Migrate(ctx); err != nil {
		slog.Error("record store migration failed", "err", err)
		return 1
	}

	resolver := plan.NewPostgresResolver(pool)
	if err := resolver.Migrate(ctx); err != nil {
		slog.Error("subscriptions migration failed", "err", err)
		return 1
	}

	billingHistory := billing.NewPostgresHistory(pool)
	if err := billingHistory.Migrate(ctx); err != nil {
		slog.Error("billing migration failed", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	sttProvider, llmProvider, embedder, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Quota ledger ──────────────────────────────────────────────────────────
	var ledgerOpts []quota.Option
	if cfg.Quota.Reservations {
		reserver := quota.NewPostgresReserver(pool)
		if err := reserver.Migrate(ctx); err != nil {
			slog.Error("reservations migration failed", "err", err)
			return 1
		}
		ledgerOpts = append(ledgerOpts, quota.WithReserver(reserver))
		slog.Info("quota reservations enabled")
	}
	ledger := quota.NewLedger(records, resolver, ledgerOpts...)

	// ── Search ────────────────────────────────────────────────────────────────
	var index search.Index
	if embedder != nil {
		semantic := search.NewSemanticIndex(pool, embedder)
		if err := semantic.Migrate(ctx); err != nil {
			slog.Error("search index migration failed", "err", err)
			return 1
		}
		index = semantic
		slog.Info("semantic search enabled", "model", embedder.ModelID(), "dimensions", embedder.Dimensions())
	} else {
		index = search.NewLexicalIndex(records)
		slog.Info("no embeddings provider configured, using lexical search")
	}

	// ── Identity ──────────────────────────────────────────────────────────────
	var identityOpts []identity.RESTOption
	if cfg.Auth.Timeout > 0 {
		identityOpts = append(identityOpts, identity.WithTimeout(cfg.Auth.Timeout))
	}
	idp, err := identity.NewRESTProvider(cfg.Auth.BaseURL, cfg.Auth.APIKey, identityOpts...)
	if err != nil {
		slog.Error("failed to create identity provider", "err", err)
		return 1
	}

	// ── Submission workflow ───────────────────────────────────────────────────
	validator := upload.NewValidator(cfg.Submission.MaxFileSizeBytes, audio.NewProber())

	var orchOpts []transcribe.Option
	if cfg.Submission.CallTimeout > 0 {
		orchOpts = append(orchOpts, transcribe.WithCallTimeout(cfg.Submission.CallTimeout))
	}
	orchOpts = append(orchOpts, transcribe.WithIndexer(index), transcribe.WithMetrics(metrics))
	newOrchestrator := func() *transcribe.Orchestrator {
		return transcribe.New(validator, ledger, sttProvider, llmProvider, records, orchOpts...)
	}

	// ── Health checks ─────────────────────────────────────────────────────────
	healthHandler := health.New()
	healthHandler.AddCheck("database", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.AddCheck("identity", idp.Health)

	// ── HTTP server ───────────────────────────────────────────────────────────
	server := httpapi.New(httpapi.Deps{
		Identity:        idp,
		Records:         records,
		Tags:            records,
		Ledger:          ledger,
		NewOrchestrator: newOrchestrator,
		Search:          index,
		Billing:         billingHistory,
		Health:          healthHandler,
		Metrics:         metrics,
	}, httpapi.Options{
		ListenAddr:      cfg.Server.ListenAddr,
		MaxUploadBytes:  cfg.Submission.MaxFileSizeBytes,
		SearchTopK:      cfg.Search.TopK,
		DefaultLanguage: cfg.Submission.DefaultLanguage,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the configured external providers. The
// embeddings provider is optional; STT and LLM are required by config
// validation.
func buildProviders(cfg *config.Config) (stt.Provider, llm.Provider, embeddings.Provider, error) {
	entry := cfg.Providers.STT
	var sttOpts []oaistt.Option
	if entry.BaseURL != "" {
		sttOpts = append(sttOpts, oaistt.WithBaseURL(entry.BaseURL))
	}
	sttProvider, err := oaistt.New(entry.APIKey, entry.Model, sttOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name, "model", entry.Model)

	entry = cfg.Providers.LLM
	var llmOpts []oaillm.Option
	if entry.BaseURL != "" {
		llmOpts = append(llmOpts, oaillm.WithBaseURL(entry.BaseURL))
	}
	llmProvider, err := oaillm.New(entry.APIKey, entry.Model, llmOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", entry.Name, "model", entry.Model)

	entry = cfg.Providers.Embeddings
	if entry.Name == "" {
		return sttProvider, llmProvider, nil, nil
	}
	var embedOpts []oaiembed.Option
	if entry.BaseURL != "" {
		embedOpts = append(embedOpts, oaiembed.WithBaseURL(entry.BaseURL))
	}
	embedder, err := oaiembed.New(entry.APIKey, entry.Model, embedOpts...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embeddings provider %q: %w", entry.Name, err)
	}
	slog.Info("provider created", "kind", "embeddings", "name", entry.Name, "model", entry.Model)

	return sttProvider, llmProvider, embedder, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
