package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/botmanager/internal/manager"
)

const defaultRetryBackoff = time.Second

func newAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add TOKEN...",
		Short: "Verify and register bot tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return report(cmd, a.mgr.AddTokens(ctx, args...))
		}),
	}
}

func newRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove TOKEN...",
		Short: "Unregister bot tokens; the monitor closes their connections",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return report(cmd, a.mgr.RemoveTokens(ctx, args...))
		}),
	}
}

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update TOKEN...",
		Short: "Ask the monitor to restart connections for bot tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return report(cmd, a.mgr.UpdateTokens(ctx, args...))
		}),
	}
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check TOKEN...",
		Short: "Verify bot tokens and show their stored connection status",
		Args:  cobra.MinimumNArgs(1),
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			return report(cmd, a.mgr.CheckTokens(ctx, args...))
		}),
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Unregister every bot token",
		Args:  cobra.NoArgs,
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			results, err := a.mgr.ClearTokens(ctx)
			if err != nil {
				return err
			}
			return report(cmd, results)
		}),
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored connection status of every registered team",
		Args:  cobra.NoArgs,
		RunE: withSharedApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			results, err := a.mgr.Status(ctx)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tokens registered")
				return nil
			}
			return report(cmd, results)
		}),
	}
}

// report prints one line per result and fails if any result failed.
func report(cmd *cobra.Command, results []manager.Result) error {
	failed := 0
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), r.String())
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d tokens failed", failed, len(results))
	}
	return nil
}
