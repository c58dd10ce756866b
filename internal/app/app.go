// Package app wires the catalog, fingerprint cache and orchestrator from a
// loaded configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/finelagusaz/ghost-launcher/internal/catalog"
	"github.com/finelagusaz/ghost-launcher/internal/config"
	"github.com/finelagusaz/ghost-launcher/internal/db"
	"github.com/finelagusaz/ghost-launcher/internal/fingerprint"
	"github.com/finelagusaz/ghost-launcher/internal/scan"
)

// App holds the long-lived components shared by the CLI and the HTTP server.
type App struct {
	Config       *config.Config
	DB           *sql.DB
	Catalog      *catalog.Store
	Fingerprints fingerprint.Cache
	Orchestrator *scan.Orchestrator
	Target       *Target
}

// Option customises Open.
type Option func(*options)

type options struct {
	scanner scan.Scanner
}

// WithScanner replaces the configured scanner process.
func WithScanner(s scan.Scanner) Option {
	return func(o *options) { o.scanner = s }
}

// Open opens the catalog database and builds the orchestrator.
func Open(cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	database, err := db.OpenCatalog(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	store := catalog.New(database)

	var cache fingerprint.Cache
	switch cfg.FingerprintCache.Backend {
	case config.BackendFile:
		// Keep a little more than the catalog retains so pruning, not the
		// cap, decides what goes.
		cache = fingerprint.NewFileCache(cfg.FingerprintCache.Path,
			fingerprint.WithMaxEntries(max(2*cfg.Eviction.MaxGenerations, 10)))
	default:
		cache = fingerprint.NewSQLCache(database)
	}

	scanner := o.scanner
	if scanner == nil {
		scanner = &scan.ExecScanner{
			Command: cfg.Scanner.Command,
			Args:    cfg.Scanner.Args,
			Timeout: cfg.Scanner.TimeoutDuration(),
		}
	}

	orch := scan.NewOrchestrator(scanner, store, cache, scan.Retention{
		MaxGenerations: cfg.Eviction.MaxGenerations,
		TTLDays:        cfg.Eviction.TTLDays,
	})

	slog.Debug("catalog opened", "db_path", cfg.DBPath, "fingerprint_backend", cfg.FingerprintCache.Backend)
	return &App{
		Config:       cfg,
		DB:           database,
		Catalog:      store,
		Fingerprints: cache,
		Orchestrator: orch,
		Target:       NewTarget(cfg.RootPath, cfg.AdditionalFolders),
	}, nil
}

// Refresh refreshes the active configuration.
func (a *App) Refresh(ctx context.Context, force bool) (scan.Outcome, error) {
	return a.Orchestrator.Refresh(ctx, a.Target.Request(force))
}

// Evict applies the retention policy with the active configuration as the
// current identity and drops fingerprints of evicted identities.
func (a *App) Evict(ctx context.Context) ([]string, error) {
	survivors, err := a.Catalog.Evict(ctx, a.Target.Identity(), a.Config.Eviction.MaxGenerations, a.Config.Eviction.TTLDays)
	if err != nil {
		return nil, err
	}
	if err := a.Fingerprints.Prune(ctx, survivors); err != nil {
		return survivors, fmt.Errorf("prune fingerprints: %w", err)
	}
	return survivors, nil
}

// Close closes the database.
func (a *App) Close() error {
	return a.DB.Close()
}
