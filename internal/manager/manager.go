package manager

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/botmanager/internal/config"
	"github.com/rickgao/botmanager/internal/connection"
	"github.com/rickgao/botmanager/internal/metrics"
	"github.com/rickgao/botmanager/internal/storage"
	"github.com/rickgao/botmanager/internal/token"
)

// ErrMonitorRunning is returned by Monitor when a loop is already active.
var ErrMonitorRunning = errors.New("monitor already running")

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to none.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager composes the registry, the command channel and the supervisor.
type Manager struct {
	cfg        config.ManagerConfig
	store      storage.Store
	registry   *token.Registry
	commands   *token.Commands
	supervisor *connection.Supervisor
	metrics    *metrics.Metrics
	logger     *slog.Logger

	// passMu serializes passes and every other supervisor mutation.
	passMu   sync.Mutex
	lastPass atomic.Int64 // unix nanos of the last completed pass

	// Monitor lifecycle
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a Manager. cfg must already have defaults applied.
func New(cfg config.ManagerConfig, store storage.Store, verifier token.Verifier, driver connection.Driver, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		store: store,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.registry = token.NewRegistry(store, verifier, cfg.TokensKey, cfg.TeamsKey, m.logger)
	m.commands = token.NewCommands(store, cfg.TeamsKey)
	m.supervisor = connection.NewSupervisor(driver, connection.SupervisorConfig{
		ReconnectBaseWait: cfg.ReconnectBaseDelay,
		ReconnectMaxWait:  cfg.ReconnectMaxDelay,
	}, m.logger.With("component", "supervisor"))

	return m
}

// Registry returns the token registry.
func (m *Manager) Registry() *token.Registry { return m.registry }

// Commands returns the command channel.
func (m *Manager) Commands() *token.Commands { return m.commands }

// Supervisor returns the connection supervisor. Callers outside the
// monitor should only read from it.
func (m *Manager) Supervisor() *connection.Supervisor { return m.supervisor }

// LastPass returns when the last reconciliation pass completed.
func (m *Manager) LastPass() time.Time {
	n := m.lastPass.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Start runs a single reconciliation pass.
func (m *Manager) Start(ctx context.Context) error {
	return m.Reconcile(ctx)
}

// Restart closes every live connection and reconnects all registered teams.
func (m *Manager) Restart(ctx context.Context) error {
	m.passMu.Lock()
	defer m.passMu.Unlock()

	stopped := m.supervisor.StopAll()
	m.logger.Info("restarting all connections", "count", len(stopped))

	return m.runPass(ctx)
}

// Stop ends a running Monitor, closes every live connection and records
// them as disconnected.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.passMu.Lock()
	defer m.passMu.Unlock()

	var errs []error
	for _, teamID := range m.supervisor.StopAll() {
		if err := m.commands.RecordStatus(ctx, teamID, string(connection.StatusDisconnected)); err != nil {
			errs = append(errs, err)
		}
	}
	m.metrics.SetConnections(0, 0, 0)

	m.logger.Info("manager stopped")
	return errors.Join(errs...)
}

// Status returns the stored status of every registered team, sorted by
// team id. It reads storage only, so it works from any process.
func (m *Manager) Status(ctx context.Context) ([]Result, error) {
	desired, err := m.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := m.commands.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(desired))
	for _, teamID := range sortedKeys(desired) {
		results = append(results, Result{
			Token:  desired[teamID],
			TeamID: teamID,
			Status: stored.StatusOf(teamID),
		})
	}
	return results, nil
}

// Monitor runs reconciliation passes every check interval until ctx is
// canceled or Stop is called. The first pass runs immediately.
func (m *Manager) Monitor(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrMonitorRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done, m.running = cancel, done, true
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.cancel, m.done, m.running = nil, nil, false
		m.mu.Unlock()
		close(done)
	}()

	m.logger.Info("monitor started",
		"interval", m.cfg.CheckInterval,
		"pass_timeout", m.cfg.PassTimeout,
	)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	m.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs one pass from the monitor loop and logs its outcome.
func (m *Manager) tick(ctx context.Context) {
	err := m.Reconcile(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		// Shutting down.
	case errors.Is(err, storage.ErrUnavailable):
		m.logger.Warn("pass aborted, storage unavailable", "error", err)
	default:
		m.logger.Error("pass failed", "error", err)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
