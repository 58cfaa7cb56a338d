package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/botmanager/internal/connection"
)

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe TOKEN",
		Short: "Open one RTM connection outside the monitor and watch its status",
		Long: `Open one RTM connection outside the monitor and watch its status.

The token does not need to be registered. The connection is closed when
--duration elapses or on Ctrl+C. Do not probe a token the monitor is
already serving.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(runProbe),
	}
	cmd.Flags().Duration("duration", 30*time.Second, "how long to hold the connection (0 = until interrupted)")
	cmd.Flags().Duration("every", 5*time.Second, "status print interval")
	return cmd
}

func runProbe(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	duration, _ := cmd.Flags().GetDuration("duration")
	every, _ := cmd.Flags().GetDuration("every")
	if every <= 0 {
		every = 5 * time.Second
	}

	tok := args[0]
	id, err := a.mgr.Registry().Verify(ctx, tok)
	if err != nil {
		return err
	}

	driver := connection.NewRTMDriver(a.slack, connection.ClientConfig{
		UserAgent:        a.cfg.Slack.UserAgent,
		PingInterval:     a.cfg.Slack.PingInterval,
		PingTimeout:      a.cfg.Slack.PingTimeout,
		WriteTimeout:     a.cfg.Slack.WriteTimeout,
		HandshakeTimeout: a.cfg.Slack.Timeout,
	}, a.logger)

	sup := connection.NewSupervisor(driver, connection.SupervisorConfig{}, a.logger)
	defer sup.StopAll()

	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if err := sup.EnsureStarted(ctx, id.ID, tok); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Team %s (%s) :: %s\n", id.ID, id.Name, sup.StatusOf(id.ID))

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status := sup.StatusOf(id.ID)
			fmt.Fprintf(out, "Team %s :: %s\n", id.ID, status)
			if !status.Alive() {
				return fmt.Errorf("connection for team %s is %s", id.ID, status)
			}
		}
	}
}
