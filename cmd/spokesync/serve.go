package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vonshlovens/spokesync/internal/media"
	"github.com/vonshlovens/spokesync/internal/receiver"
	"github.com/vonshlovens/spokesync/internal/scheduler"
	"github.com/vonshlovens/spokesync/internal/transport/middleware"
	"github.com/vonshlovens/spokesync/internal/transport/rest"
	"github.com/vonshlovens/spokesync/internal/watcher"
)

// saveInterval is how often the daemon persists vault state
const saveInterval = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the receiving API and media server",
		Long:  `Serves /receive, /update, /status and /media/{id}, and runs the stuck-delivery sweep and retention jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg

			reconciler := media.NewReconciler(a.db, nil, media.Config{
				SiteURL:  cfg.SiteURL,
				Timeout:  cfg.Receiver.MediaTimeout,
				MaxBytes: cfg.Receiver.MaxMediaBytes,
				Workers:  cfg.Dispatch.Workers,
			}, a.logger)
			recv := receiver.New(a.db, reconciler, a.activity, receiver.Config{
				SiteURL:            cfg.SiteURL,
				DefaultAuthor:      cfg.Receiver.DefaultAuthor,
				DownloadImages:     cfg.Receiver.DownloadImages,
				AllowSEOOverride:   cfg.Receiver.AllowSEOOverride,
				AllowThemeOverride: cfg.Receiver.AllowThemeOverride,
			}, a.logger)

			role := "spoke"
			if cfg.HasVault() {
				role = "hub,spoke"
			}
			handler := rest.NewHandler(recv, a.db, a.activity, rest.Info{
				Version: version,
				Role:    role,
				SiteURL: cfg.SiteURL,
			}, a.logger)
			router := rest.NewRouter(handler, middleware.Auth(a.registry), cfg.Receiver.MaxBodyBytes, a.logger)
			server := rest.NewServer(cfg.Receiver.ListenAddr, router, cfg.Receiver.ShutdownTimeout, a.logger)

			sched := scheduler.New(a.logger)
			sched.Add(scheduler.SweepJob(a.tracker, cfg.Reconcile.Interval, cfg.Reconcile.StuckAfter))
			sched.Add(scheduler.RetentionJob(a.activity, a.tracker, cfg.Retention.Interval, cfg.Retention.Activity, cfg.Retention.Deliveries))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(gctx) })
			g.Go(func() error { return sched.Start(gctx) })

			slog.Info("receiver started", "addr", cfg.Receiver.ListenAddr, "site_url", cfg.SiteURL)
			return g.Wait()
		},
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Watch the vault and syndicate changes",
		Long:  `Watches the vault for changes, stores them and dispatches each changed document to the destinations its frontmatter selects. Failed deliveries are retried periodically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg := a.cfg

			dispatcher := a.dispatcher()
			engine, err := a.engine(dispatcher)
			if err != nil {
				return err
			}

			slog.Info("performing initial sync")
			if err := engine.FullReconcile(ctx); err != nil {
				slog.Error("initial sync failed", "error", err)
			}

			w, err := watcher.New(cfg.VaultPath, time.Duration(cfg.Sync.DebounceMs)*time.Millisecond, watcher.Filter{
				Ignore:  cfg.IgnorePatterns,
				Include: cfg.IncludePatterns,
			})
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start watcher: %w", err)
			}

			sched := scheduler.New(a.logger)
			sched.Add(scheduler.SweepJob(a.tracker, cfg.Reconcile.Interval, cfg.Reconcile.StuckAfter))
			sched.Add(scheduler.RetryJob(func(ctx context.Context) error {
				summary, err := a.retryDeliveries(ctx, dispatcher)
				if len(summary) > 0 {
					slog.Info("retried failed deliveries", "documents", len(summary))
				}
				return err
			}, cfg.Reconcile.Interval))

			schedDone := make(chan error, 1)
			go func() { schedDone <- sched.Start(ctx) }()

			slog.Info("daemon started", "vault", cfg.VaultPath)
			fmt.Println("Watching vault for changes. Press Ctrl+C to stop.")

			saveTicker := time.NewTicker(saveInterval)
			defer saveTicker.Stop()

			for {
				select {
				case <-ctx.Done():
					slog.Info("shutting down...")
					w.Stop()
					if err := engine.SaveState(); err != nil {
						slog.Warn("failed to save state", "error", err)
					}
					return <-schedDone

				case event, ok := <-w.Events():
					if !ok {
						return nil
					}
					slog.Debug("file event", "path", event.Path, "type", event.EventType)
					if err := engine.SyncFile(ctx, event.Path, event.EventType); err != nil {
						slog.Error("sync failed", "path", event.Path, "error", err)
					}

				case <-saveTicker.C:
					if err := engine.SaveState(); err != nil {
						slog.Warn("failed to save state", "error", err)
					}
					engine.RetryFailed(ctx)
				}
			}
		},
	}
}
