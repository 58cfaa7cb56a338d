package token

import (
	"context"
	"fmt"

	"github.com/rickgao/botmanager/internal/storage"
)

// Values stored in the command/status field.
const (
	CommandRestart     = "restart"
	StatusNotConnected = "not_connected"
)

// Commands maps team id -> command or last observed status.
//
// A single field carries both directions: producers write "restart" and
// the monitor overwrites it with a status once the restart is done. Two
// restart requests landing between passes collapse into one, and the
// last write wins.
type Commands struct {
	store    storage.Store
	teamsKey string
}

// NewCommands creates a command channel on the teamsKey bucket.
func NewCommands(store storage.Store, teamsKey string) *Commands {
	return &Commands{store: store, teamsKey: teamsKey}
}

// RequestRestart asks the monitor to restart teamID's connection.
func (c *Commands) RequestRestart(ctx context.Context, teamID string) error {
	if err := c.store.Set(ctx, c.teamsKey, teamID, CommandRestart); err != nil {
		return fmt.Errorf("request restart: %w", err)
	}
	return nil
}

// RecordStatus overwrites the field with status, clearing any pending
// restart. Only the monitor should call this.
func (c *Commands) RecordStatus(ctx context.Context, teamID, status string) error {
	if err := c.store.Set(ctx, c.teamsKey, teamID, status); err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	return nil
}

// StatusOf returns the stored value for teamID, or StatusNotConnected.
func (c *Commands) StatusOf(ctx context.Context, teamID string) (string, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.StatusOf(teamID), nil
}

// Snapshot is one read of the command bucket: team id -> command or status.
type Snapshot map[string]string

// StatusOf returns the stored value for teamID, or StatusNotConnected.
func (s Snapshot) StatusOf(teamID string) string {
	if v := s[teamID]; v != "" {
		return v
	}
	return StatusNotConnected
}

// Snapshot returns the whole bucket in one read.
func (c *Commands) Snapshot(ctx context.Context) (Snapshot, error) {
	all, err := c.store.GetAll(ctx, c.teamsKey)
	if err != nil {
		return nil, fmt.Errorf("read commands: %w", err)
	}
	return Snapshot(all), nil
}

// Clear removes teamID's entry.
func (c *Commands) Clear(ctx context.Context, teamID string) error {
	if err := c.store.Delete(ctx, c.teamsKey, teamID); err != nil {
		return fmt.Errorf("clear command: %w", err)
	}
	return nil
}
