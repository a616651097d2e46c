// Package app wires the engine together: config, replica store, index,
// remote client, sync scheduler, sweeper and the HTTP facade.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"scenefeed/pkg/banner"
	"scenefeed/pkg/config"
	"scenefeed/pkg/feed"
	"scenefeed/pkg/index"
	"scenefeed/pkg/logger"
	"scenefeed/pkg/merge"
	"scenefeed/pkg/mutate"
	"scenefeed/pkg/remote"
	"scenefeed/pkg/store"
	"scenefeed/pkg/syncer"
)

// App encapsulates the engine components and lifecycle.
type App struct {
	cfg       *config.Config
	addr      string
	sources   string
	version   string
	commit    string
	buildDate string

	store  *store.Store
	sched  *syncer.Scheduler
	feed   *feed.Engine
	mutate *mutate.Engine

	srv *http.Server
}

// New initializes everything that does not need a running context: the
// replica store, the remote client and the engines. Call Run to start
// the sweeper and HTTP server and block until shutdown.
func New(cfg *config.Config, addr, sources, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	var idx *index.Index
	if !cfg.Query.ScanOnly {
		idx = index.New()
	}
	st, err := store.Open(cfg.Server.DBPath, idx)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	var client remote.Client
	if cfg.RemoteActive() {
		client = remote.NewHTTPClient(
			cfg.Remote.BaseURL,
			cfg.Remote.Token,
			cfg.Remote.Timeout.Duration(),
			cfg.Remote.MaxBodyBytes.Int64(),
		)
	}
	merger := merge.New(st)
	sched := syncer.New(client, merger, syncer.Config{
		FeedMinInterval:    cfg.Sync.FeedMinInterval.Duration(),
		MessageMinInterval: cfg.Sync.MessageMinInterval.Duration(),
		PageSize:           cfg.Remote.PageSize,
	})

	a := &App{
		cfg:       cfg,
		addr:      addr,
		sources:   sources,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		store:     st,
		sched:     sched,
		feed:      feed.New(st, sched, cfg.RemoteActive()),
		mutate:    mutate.New(st, client),
	}
	return a, nil
}

// validateConfig fails fast on configurations the engine cannot run
// with.
func validateConfig(cfg *config.Config) error {
	if cfg.Server.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}
	if cfg.Remote.PageSize < 0 {
		return fmt.Errorf("remote.page_size must not be negative")
	}
	if cfg.RemoteActive() && cfg.Remote.Timeout.Duration() < 0 {
		return fmt.Errorf("remote.timeout must not be negative")
	}
	return nil
}

// Run starts the sweeper and the HTTP facade and blocks until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancelSweep, err := a.startSweeper(ctx)
	if err != nil {
		return err
	}
	defer cancelSweep()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
		a.shutdownHTTP()
		return a.store.Close()
	case err := <-errCh:
		_ = a.store.Close()
		return err
	}
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.addr, a.cfg.Server.DBPath, a.cfg.Remote.BaseURL, a.sources, verStr)
}
