package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/botmanager/internal/connection"
	"github.com/rickgao/botmanager/internal/metrics"
	"github.com/rickgao/botmanager/internal/token"
)

// Reconcile runs one pass that converges live connections onto the
// registry. Passes never overlap; each is bounded by the pass timeout.
//
// A storage failure while reading the registry or the command channel
// aborts the pass. Connection failures only affect their own team, whose
// status becomes "error" until a later pass succeeds.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.passMu.Lock()
	defer m.passMu.Unlock()
	return m.runPass(ctx)
}

// runPass must be called with passMu held.
func (m *Manager) runPass(ctx context.Context) error {
	if m.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.PassTimeout)
		defer cancel()
	}

	// Work on one team (open, close, status write) runs on teamCtx, which
	// a stop signal does not cancel; only the pass deadline bounds it.
	// The stop signal is observed on ctx between teams.
	teamCtx := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		teamCtx, cancel = context.WithDeadline(teamCtx, deadline)
		defer cancel()
	}

	start := time.Now()
	failed, err := m.reconcile(ctx, teamCtx)

	result := metrics.ResultOK
	switch {
	case err != nil:
		result = metrics.ResultAborted
	case failed > 0:
		result = metrics.ResultPartial
	}
	m.metrics.ObservePass(result, time.Since(start))

	if err == nil {
		m.lastPass.Store(time.Now().UnixNano())
	}
	return err
}

// reconcile returns the number of teams whose connection could not be
// brought up.
func (m *Manager) reconcile(ctx, teamCtx context.Context) (int, error) {
	desired, err := m.registry.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read registry: %w", err)
	}
	commands, err := m.commands.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("read commands: %w", err)
	}

	// Close connections for teams that left the registry. Failure
	// records are dropped too.
	for _, teamID := range m.supervisor.Tracked() {
		if _, ok := desired[teamID]; !ok {
			m.supervisor.Stop(teamID)
		}
	}

	failed := 0
	for _, teamID := range sortedKeys(desired) {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		tok := desired[teamID]
		stored := commands[teamID]

		if err := m.converge(teamCtx, teamID, tok, stored == token.CommandRestart); err != nil {
			if teamCtx.Err() != nil {
				return failed, teamCtx.Err()
			}
			failed++
			m.logOpenFailure(teamID, err)
		}

		status := string(m.supervisor.StatusOf(teamID))
		if status != stored {
			if err := m.commands.RecordStatus(teamCtx, teamID, status); err != nil {
				return failed, err
			}
		}
	}

	stats := m.supervisor.Stats()
	m.metrics.SetConnections(len(desired), stats.Live, stats.Connected)

	m.logger.Debug("pass complete",
		"desired", len(desired),
		"live", stats.Live,
		"connected", stats.Connected,
		"failed", failed,
	)
	return failed, nil
}

// converge brings one team's connection in line with its registry entry.
func (m *Manager) converge(ctx context.Context, teamID, tok string, restart bool) error {
	if restart {
		m.logger.Info("restart requested", "team_id", teamID)
		m.metrics.Restarted()
		return m.supervisor.Restart(ctx, teamID, tok)
	}

	// A live handle that dropped is reopened. A token change is handled
	// by EnsureStarted.
	if cur, ok := m.supervisor.TokenOf(teamID); ok && cur == tok {
		status := m.supervisor.StatusOf(teamID)
		if status.Alive() {
			return nil
		}
		m.logger.Info("reopening dropped connection", "team_id", teamID, "status", status)
		return m.supervisor.Restart(ctx, teamID, tok)
	}

	return m.supervisor.EnsureStarted(ctx, teamID, tok)
}

func (m *Manager) logOpenFailure(teamID string, err error) {
	if errors.Is(err, connection.ErrBackoff) {
		m.logger.Debug("connection retry deferred",
			"team_id", teamID,
			"last_error", m.supervisor.LastError(teamID),
		)
		return
	}

	stage := "open"
	var oe *connection.OpenError
	if errors.As(err, &oe) {
		stage = oe.Stage
	}
	m.metrics.OpenFailed(stage)
	m.logger.Warn("connection failed", "team_id", teamID, "stage", stage, "error", err)
}
