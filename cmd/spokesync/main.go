package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vonshlovens/spokesync/internal/config"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
	version   = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "spokesync",
		Short:   "Hub-and-spoke content syndication",
		Long:    `Syndicates documents from a hub to registered spoke sites and receives them on the spoke side, tracking every delivery.`,
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "info"
			if verbose {
				level = "debug"
			}
			setupLogger(level, logFormat)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides config)")

	rootCmd.AddCommand(
		serveCmd(),
		daemonCmd(),
		syncCmd(),
		dispatchCmd(),
		retryCmd(),
		reconcileCmd(),
		statusCmd(),
		migrateCmd(),
		initCmd(),
		connectionsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger installs the default slog logger
func setupLogger(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig loads the config file and applies its log settings unless
// flags already chose them
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}
	setupLogger(level, format)
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
