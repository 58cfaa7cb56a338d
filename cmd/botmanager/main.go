// botmanager keeps one Slack RTM connection open per registered bot token.
//
// Tokens are registered with the add/remove/update commands, which only
// write to the shared store. A single `botmanager monitor` process reads the
// store every check interval and opens or closes connections to match.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rickgao/botmanager/internal/config"
	"github.com/rickgao/botmanager/internal/connection"
	"github.com/rickgao/botmanager/internal/manager"
	"github.com/rickgao/botmanager/internal/metrics"
	"github.com/rickgao/botmanager/internal/slack"
	"github.com/rickgao/botmanager/internal/storage"
	"github.com/rickgao/botmanager/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "botmanager",
		Short:         "Supervise Slack RTM connections for a set of bot tokens",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to config file (defaults apply when empty)")

	root.AddCommand(
		newMonitorCommand(),
		newAddCommand(),
		newRemoveCommand(),
		newUpdateCommand(),
		newCheckCommand(),
		newClearCommand(),
		newStatusCommand(),
		newProbeCommand(),
	)
	return root
}

// app holds what every subcommand needs.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Store
	slack   *slack.Client
	metrics *metrics.Metrics
	mgr     *manager.Manager
}

// loadConfig reads --config, or returns defaults when it is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadAndValidate(path)
}

// newApp wires config, logging, storage and the manager. mt may be nil.
func newApp(cmd *cobra.Command, mt *metrics.Metrics) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	store, err := storage.Open(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	client := slack.NewClient(
		cfg.Slack.APIURL,
		slack.WithLogger(logger),
		slack.WithTimeout(cfg.Slack.Timeout),
		slack.WithRetries(cfg.Slack.MaxRetries, defaultRetryBackoff),
		slack.WithUserAgent(cfg.Slack.UserAgent),
	)

	driver := connection.NewRTMDriver(client, connection.ClientConfig{
		UserAgent:        cfg.Slack.UserAgent,
		PingInterval:     cfg.Slack.PingInterval,
		PingTimeout:      cfg.Slack.PingTimeout,
		WriteTimeout:     cfg.Slack.WriteTimeout,
		HandshakeTimeout: cfg.Slack.Timeout,
	}, logger.With("component", "rtm"))

	mgr := manager.New(cfg.Manager, store, client, driver,
		manager.WithLogger(logger),
		manager.WithMetrics(mt),
	)

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		slack:   client,
		metrics: mt,
		mgr:     mgr,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("error closing store", "error", err)
	}
}

// newLogger builds the process logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

// withApp adapts a RunE body that needs a wired app.
func withApp(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, nil)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), a, cmd, args)
	}
}

// withSharedApp is withApp for commands whose writes must reach a monitor
// running in another process.
func withSharedApp(run runFunc) func(*cobra.Command, []string) error {
	return withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := requireSharedStore(a.cfg.Storage.Driver); err != nil {
			return err
		}
		return run(ctx, a, cmd, args)
	})
}

func requireSharedStore(driver string) error {
	if driver == "memory" {
		return fmt.Errorf("storage.driver %q keeps state inside this process; use redis, postgres or bolt so the monitor sees this change (set --config)", driver)
	}
	return nil
}
