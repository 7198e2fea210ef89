package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/wmelnik/carscan/app/allegro"
	"github.com/wmelnik/carscan/app/cfg"
	"github.com/wmelnik/carscan/app/database"
	"github.com/wmelnik/carscan/app/detail"
	"github.com/wmelnik/carscan/app/filter"
	"github.com/wmelnik/carscan/app/ingest"
	"github.com/wmelnik/carscan/app/marketplace"
	"github.com/wmelnik/carscan/app/migration"
	"github.com/wmelnik/carscan/app/refdata"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting carscan", "version", appCfg.Version, "data_dir", appCfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(appCfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	// Bring the data dir layout up to date before anything touches it.
	migrator := migration.NewMigrator(appCfg.DataDir, appCfg.Provider, appCfg.Host)
	if err := migrator.CheckMigrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	state, err := database.OpenState(filepath.Join(appCfg.DataDir, "state.db"))
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()

	token, err := loadAccessToken(state, appCfg.NoFetch)
	if err != nil {
		return err
	}

	criteria, err := refdata.LoadCriteria(filepath.Join(appCfg.DataDir, "criteria.yml"))
	if err != nil {
		return err
	}
	slog.Info("Criteria loaded", "count", criteria.Count())

	regions, err := refdata.LoadRegions(filepath.Join(appCfg.DataDir, "regions.yml"))
	if err != nil {
		return err
	}

	store := database.NewShardStore(database.NewOfferStore(appCfg.Provider), filepath.Join(appCfg.DataDir, "offers"))
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load offer store: %w", err)
	}
	slog.Info("Offer store loaded", "records", store.Len())

	client := allegro.NewClient(allegro.DefaultBaseURL, token, appCfg.UserAgent)

	service := ingest.NewService(criteria, regions, filter.NewTranslator(client), client,
		detail.NewFetcher(client), store, database.NewMetadataRepository(state),
		appCfg.Host, time.Now())

	// Run persists the shards itself before it advances the run marker.
	return service.Run(ctx)
}

// loadAccessToken reads the stored token blob. The token acquisition flow
// lives outside this binary, so a missing token is always fatal here.
func loadAccessToken(state *database.StateDB, noFetch bool) (string, error) {
	tokens, err := database.NewTokenRepository(state).Get()
	if err != nil {
		return "", err
	}

	token := tokens["access_token"]
	if token == "" {
		reason := "no stored access token"
		if noFetch {
			reason = "no stored access token and token fetch is disabled"
		}
		return "", &marketplace.AuthError{Reason: reason}
	}
	return token, nil
}
