package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/botmanager/internal/metrics"
	"github.com/rickgao/botmanager/internal/version"
)

const shutdownTimeout = 30 * time.Second

func newMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the reconciliation loop until interrupted",
		Long: `Run the reconciliation loop until interrupted.

Only one monitor may run against a store; a second one would open a
duplicate connection for every team.`,
		Args: cobra.NoArgs,
		RunE: runMonitor,
	}
	cmd.Flags().Bool("no-http", false, "disable the health and metrics server")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(cmd, metrics.New(reg))
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	logger.Info("starting monitor",
		"version", version.Short(),
		"storage", a.cfg.Storage.Driver,
		"check_interval", a.cfg.Manager.CheckInterval,
	)

	ctx := cmd.Context()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.mgr.Monitor(gctx)
	})

	noHTTP, _ := cmd.Flags().GetBool("no-http")
	if !noHTTP {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           newHTTPHandler(a, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting health server",
				"port", a.cfg.Metrics.Port,
				"metrics_path", a.cfg.Metrics.Path,
			)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if stopErr := a.mgr.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("error recording final status", "error", stopErr)
	}

	logger.Info("monitor stopped")
	return err
}
