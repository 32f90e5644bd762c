package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"openai"},
	"llm":        {"openai"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must not be negative"))
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("database.postgres_dsn is required"))
	}

	// Auth
	if cfg.Auth.BaseURL == "" {
		errs = append(errs, fmt.Errorf("auth.base_url is required"))
	}
	if cfg.Auth.Timeout < 0 {
		errs = append(errs, fmt.Errorf("auth.timeout must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// The submission workflow cannot run without its two providers.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, fmt.Errorf("providers.stt.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("providers.llm.name is required"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; search falls back to fuzzy title matching")
	}

	// Submission
	if cfg.Submission.MaxFileSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("submission.max_file_size_bytes must not be negative"))
	}
	if cfg.Submission.CallTimeout < 0 {
		errs = append(errs, fmt.Errorf("submission.call_timeout must not be negative"))
	}

	// Search
	if cfg.Search.TopK < 0 {
		errs = append(errs, fmt.Errorf("search.top_k must not be negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
