package manager

import (
	"context"
	"fmt"

	"github.com/rickgao/botmanager/internal/token"
)

// AddTokens verifies each token and registers it under its team id.
func (m *Manager) AddTokens(ctx context.Context, toks ...string) []Result {
	return m.each("add token", toks, func(tok string) Result {
		id, err := m.registry.Add(ctx, tok)
		return Result{TeamID: id.ID, Team: id.Name, Err: err}
	})
}

// RemoveTokens unregisters each token. The monitor closes the connection
// on its next pass.
func (m *Manager) RemoveTokens(ctx context.Context, toks ...string) []Result {
	return m.each("remove token", toks, func(tok string) Result {
		teamID, err := m.registry.Remove(ctx, tok)
		return Result{TeamID: teamID, Err: err}
	})
}

// UpdateTokens asks the monitor to restart each token's connection.
func (m *Manager) UpdateTokens(ctx context.Context, toks ...string) []Result {
	return m.each("update token", toks, func(tok string) Result {
		teamID, err := m.registry.Lookup(ctx, tok)
		if err != nil {
			return Result{Err: err}
		}
		if err := m.commands.RequestRestart(ctx, teamID); err != nil {
			return Result{TeamID: teamID, Err: err}
		}
		return Result{TeamID: teamID, Status: token.CommandRestart}
	})
}

// CheckTokens verifies each token and reports the status the monitor last
// stored for its team.
func (m *Manager) CheckTokens(ctx context.Context, toks ...string) []Result {
	stored, snapErr := m.commands.Snapshot(ctx)

	return m.each("check token", toks, func(tok string) Result {
		if snapErr != nil {
			return Result{Err: snapErr}
		}
		id, err := m.registry.Verify(ctx, tok)
		if err != nil {
			return Result{Err: err}
		}
		r := Result{TeamID: id.ID, Team: id.Name, Status: stored.StatusOf(id.ID)}
		m.logger.Info(r.String())
		return r
	})
}

// ClearTokens removes every registered token.
func (m *Manager) ClearTokens(ctx context.Context) ([]Result, error) {
	desired, err := m.registry.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("clear tokens: %w", err)
	}

	toks := make([]string, 0, len(desired))
	for _, teamID := range sortedKeys(desired) {
		toks = append(toks, desired[teamID])
	}
	return m.RemoveTokens(ctx, toks...), nil
}

// each applies fn to every token, logging failures and carrying on.
func (m *Manager) each(op string, toks []string, fn func(tok string) Result) []Result {
	results := make([]Result, 0, len(toks))
	for _, tok := range toks {
		r := fn(tok)
		r.Token = tok
		if r.Err != nil {
			m.logger.Warn(op+" failed", "token", redact(tok), "error", r.Err)
		}
		results = append(results, r)
	}
	return results
}
