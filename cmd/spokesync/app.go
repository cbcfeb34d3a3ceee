package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/ai"
	"github.com/vonshlovens/spokesync/internal/config"
	"github.com/vonshlovens/spokesync/internal/db"
	"github.com/vonshlovens/spokesync/internal/delivery"
	"github.com/vonshlovens/spokesync/internal/dispatch"
	"github.com/vonshlovens/spokesync/internal/registry"
	"github.com/vonshlovens/spokesync/internal/sync"
	"github.com/vonshlovens/spokesync/internal/transform"
)

// app holds the components every command shares
type app struct {
	cfg      *config.Config
	db       *db.DB
	logger   *slog.Logger
	activity *activity.Log
	registry *registry.Registry
	tracker  *delivery.Tracker
	client   *dispatch.Client
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	database, err := db.New(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger := slog.Default()
	log := activity.New(database, logger)
	return &app{
		cfg:      cfg,
		db:       database,
		logger:   logger,
		activity: log,
		registry: registry.New(database, log, logger),
		tracker:  delivery.NewTracker(database, log, logger),
		client: dispatch.NewClient(nil, dispatch.ClientConfig{
			Timeout:      cfg.Dispatch.Timeout,
			ProbeTimeout: cfg.Dispatch.ProbeTimeout,
			WakePause:    cfg.Dispatch.WakePause,
			MaxErrorBody: cfg.Dispatch.MaxErrorBody,
			UserAgent:    "spokesync/" + version,
		}, logger),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// dispatcher builds the outbound side, with AI rewriting when a provider is configured
func (a *app) dispatcher() *dispatch.Dispatcher {
	opts := []transform.Option{transform.WithActivity(a.activity)}
	if a.cfg.AI.Enabled() {
		rewriter := ai.NewAnthropic(ai.Config{
			APIKey:    a.cfg.AI.APIKey,
			Model:     a.cfg.AI.Model,
			MaxTokens: a.cfg.AI.MaxTokens,
			Timeout:   a.cfg.AI.Timeout,
		}, a.logger)
		opts = append(opts, transform.WithRewriter(rewriter, a.cfg.AI.MaxWords))
	}
	pipeline := transform.New(a.cfg.SiteURL, a.logger, opts...)

	return dispatch.New(a.registry, a.tracker, pipeline, a.client, a.activity, dispatch.Config{
		SiteURL: a.cfg.SiteURL,
		Workers: a.cfg.Dispatch.Workers,
	}, a.logger)
}

// engine builds the vault engine; a nil dispatcher only stores documents
func (a *app) engine(d *dispatch.Dispatcher, opts ...sync.Option) (*sync.Engine, error) {
	if !a.cfg.HasVault() {
		return nil, fmt.Errorf("vault_path is not configured")
	}
	if d != nil {
		opts = append(opts, sync.WithDispatch(a.registry, d))
	}
	engine, err := sync.NewEngine(a.db, a.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}
	return engine, nil
}

// retryDeliveries re-sends failed deliveries and reports what happened
func (a *app) retryDeliveries(ctx context.Context, d *dispatch.Dispatcher) (map[int64]map[string]int, error) {
	results, err := d.Retry(ctx, a.db, a.cfg.Sync.RetryAttempts)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]map[string]int, len(results))
	for docID, byDest := range results {
		out[docID] = make(map[string]int)
		for outcome, n := range dispatch.Summarize(byDest) {
			out[docID][string(outcome)] = n
		}
	}
	return out, nil
}
