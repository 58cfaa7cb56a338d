package connection

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// liveConn holds the state for a single team's connection.
type liveConn struct {
	conn     Conn
	token    string
	openedAt time.Time
}

// failure tracks consecutive open failures for a team.
type failure struct {
	err      error
	attempts int
	retryAt  time.Time
}

// Supervisor owns the team id -> live connection map. It is the only
// component that calls the Driver.
//
// Mutating methods are expected to be called from one goroutine at a time
// (the reconciliation pass); the mutex only protects readers such as
// health checks. Opens and closes happen outside the lock.
type Supervisor struct {
	driver Driver
	cfg    SupervisorConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	live     map[string]*liveConn
	failures map[string]*failure
}

// NewSupervisor creates an empty Supervisor.
func NewSupervisor(driver Driver, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		driver:   driver,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		live:     make(map[string]*liveConn),
		failures: make(map[string]*failure),
	}
}

// EnsureStarted opens a connection for teamID unless one is already live
// with the same token. A live connection using a different token is
// replaced. Failed opens are remembered and paced by the backoff config.
func (s *Supervisor) EnsureStarted(ctx context.Context, teamID, tok string) error {
	s.mu.RLock()
	lc, ok := s.live[teamID]
	f := s.failures[teamID]
	s.mu.RUnlock()

	if ok {
		if lc.token == tok {
			return nil
		}
		s.logger.Info("token changed, replacing connection", "team_id", teamID)
		s.Stop(teamID)
	}

	if f != nil && s.now().Before(f.retryAt) {
		return &OpenError{TeamID: teamID, Stage: "backoff", Err: ErrBackoff}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := s.now()
	conn, err := s.driver.Open(ctx, tok)
	if err != nil {
		s.recordFailure(teamID, err)
		var oe *OpenError
		if errors.As(err, &oe) {
			oe.TeamID = teamID
			return oe
		}
		return &OpenError{TeamID: teamID, Stage: "open", Err: err}
	}

	s.mu.Lock()
	s.live[teamID] = &liveConn{conn: conn, token: tok, openedAt: s.now()}
	delete(s.failures, teamID)
	s.mu.Unlock()

	s.logger.Info("connection opened",
		"team_id", teamID,
		"conn_id", conn.ID(),
		"duration", s.now().Sub(start),
	)
	return nil
}

func (s *Supervisor) recordFailure(teamID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.failures[teamID]
	if !ok {
		f = &failure{}
		s.failures[teamID] = f
	}
	f.err = err
	f.attempts++
	f.retryAt = s.now().Add(s.backoff(f.attempts))
}

// backoff returns base * 2^(attempts-1), capped at the max wait.
func (s *Supervisor) backoff(attempts int) time.Duration {
	if s.cfg.ReconnectBaseWait <= 0 || attempts <= 0 {
		return 0
	}
	wait := s.cfg.ReconnectBaseWait
	for i := 1; i < attempts; i++ {
		wait *= 2
		if s.cfg.ReconnectMaxWait > 0 && wait >= s.cfg.ReconnectMaxWait {
			return s.cfg.ReconnectMaxWait
		}
	}
	if s.cfg.ReconnectMaxWait > 0 && wait > s.cfg.ReconnectMaxWait {
		return s.cfg.ReconnectMaxWait
	}
	return wait
}

// Stop closes and forgets teamID's connection and failure history.
// It reports whether a live connection was closed.
func (s *Supervisor) Stop(teamID string) bool {
	s.mu.Lock()
	lc, ok := s.live[teamID]
	delete(s.live, teamID)
	delete(s.failures, teamID)
	s.mu.Unlock()

	if !ok {
		return false
	}

	if err := lc.conn.Close(); err != nil {
		s.logger.Warn("error closing connection", "team_id", teamID, "error", err)
	}
	s.logger.Info("connection closed",
		"team_id", teamID,
		"conn_id", lc.conn.ID(),
		"uptime", s.now().Sub(lc.openedAt),
	)
	return true
}

// Restart closes teamID's connection (if any) and opens a new one,
// bypassing any pending backoff.
func (s *Supervisor) Restart(ctx context.Context, teamID, tok string) error {
	s.Stop(teamID)
	return s.EnsureStarted(ctx, teamID, tok)
}

// StopAll closes every live connection and returns their team ids.
func (s *Supervisor) StopAll() []string {
	ids := s.Live()
	for _, id := range ids {
		s.Stop(id)
	}

	s.mu.Lock()
	s.failures = make(map[string]*failure)
	s.mu.Unlock()

	return ids
}

// StatusOf reports the connection state for teamID: the driver-reported
// status when live, StatusError after a failed open, StatusNotConnected
// otherwise.
func (s *Supervisor) StatusOf(teamID string) Status {
	s.mu.RLock()
	lc, ok := s.live[teamID]
	_, failed := s.failures[teamID]
	s.mu.RUnlock()

	switch {
	case ok:
		return lc.conn.Status()
	case failed:
		return StatusError
	default:
		return StatusNotConnected
	}
}

// LastError returns the most recent open failure for teamID, if any.
func (s *Supervisor) LastError(teamID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.failures[teamID]; ok {
		return f.err
	}
	return nil
}

// Handle returns the live connection for teamID.
func (s *Supervisor) Handle(teamID string) (Conn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lc, ok := s.live[teamID]
	if !ok {
		return nil, false
	}
	return lc.conn, true
}

// TokenOf returns the token the live connection for teamID was opened with.
func (s *Supervisor) TokenOf(teamID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lc, ok := s.live[teamID]
	if !ok {
		return "", false
	}
	return lc.token, true
}

// Live returns the sorted team ids with a live connection.
func (s *Supervisor) Live() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Tracked returns the sorted team ids that are live or have a failure
// record. Both need cleanup once the team leaves the registry.
func (s *Supervisor) Tracked() []string {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.live)+len(s.failures))
	for id := range s.live {
		seen[id] = struct{}{}
	}
	for id := range s.failures {
		seen[id] = struct{}{}
	}
	s.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stats returns current connection counts.
func (s *Supervisor) Stats() SupervisorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SupervisorStats{Live: len(s.live), Failing: len(s.failures)}
	for _, lc := range s.live {
		if lc.conn.Status() == StatusConnected {
			stats.Connected++
		}
	}
	return stats
}

// SupervisorStats provides statistics about the supervisor.
type SupervisorStats struct {
	Live      int // Handles held
	Connected int // Handles reporting connected
	Failing   int // Teams whose last open failed
}
