package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/botmanager/internal/config"
	"github.com/rickgao/botmanager/internal/connection"
	"github.com/rickgao/botmanager/internal/storage"
	"github.com/rickgao/botmanager/internal/token"
)

// teams maps every test token to its team id.
var teams = map[string]string{
	"tok-A":  "A",
	"tok-A2": "A",
	"tok-B":  "B",
	"tok-C":  "C",
}

func testVerifier() token.Verifier {
	return token.VerifierFunc(func(ctx context.Context, tok string) (token.Identity, error) {
		id, ok := teams[tok]
		if !ok {
			return token.Identity{}, errors.New("invalid_auth")
		}
		return token.Identity{ID: id, Name: "Team " + id}, nil
	})
}

type fakeConn struct {
	id     string
	mu     sync.Mutex
	status connection.Status
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Status() connection.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.status = connection.StatusDisconnected
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) set(s connection.Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// fakeDriver opens fakeConns and refuses tokens listed in fail.
type fakeDriver struct {
	mu    sync.Mutex
	n     int
	fail  map[string]bool
	opens map[string]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{fail: make(map[string]bool), opens: make(map[string]int)}
}

func (d *fakeDriver) Open(ctx context.Context, tok string) (connection.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[tok] {
		return nil, &connection.OpenError{Stage: "dial", Err: errors.New("refused")}
	}
	d.n++
	d.opens[tok]++
	return &fakeConn{id: fmt.Sprintf("conn-%d", d.n), status: connection.StatusConnected}, nil
}

func (d *fakeDriver) setFail(tok string, fail bool) {
	d.mu.Lock()
	d.fail[tok] = fail
	d.mu.Unlock()
}

func (d *fakeDriver) openCount(tok string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[tok]
}

// flakyStore wraps a Memory store and fails every call while down is set.
type flakyStore struct {
	*storage.Memory
	down atomic.Bool
}

func (s *flakyStore) Set(ctx context.Context, bucket, field, value string) error {
	if s.down.Load() {
		return storage.ErrUnavailable
	}
	return s.Memory.Set(ctx, bucket, field, value)
}

func (s *flakyStore) GetAll(ctx context.Context, bucket string) (map[string]string, error) {
	if s.down.Load() {
		return nil, storage.ErrUnavailable
	}
	return s.Memory.GetAll(ctx, bucket)
}

func testConfig() config.ManagerConfig {
	return config.ManagerConfig{
		TokensKey:     config.DefaultTokensKey,
		TeamsKey:      config.DefaultTeamsKey,
		CheckInterval: 20 * time.Millisecond,
		PassTimeout:   time.Second,
	}
}

type fixture struct {
	mgr    *Manager
	store  *flakyStore
	driver *fakeDriver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &flakyStore{Memory: storage.NewMemory()}
	driver := newFakeDriver()
	return &fixture{
		mgr:    New(testConfig(), store, testVerifier(), driver),
		store:  store,
		driver: driver,
	}
}

func (f *fixture) stored(t *testing.T, bucket string) map[string]string {
	t.Helper()
	all, err := f.store.Memory.GetAll(context.Background(), bucket)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	return all
}

func mustOK(t *testing.T, results []Result) {
	t.Helper()
	for _, r := range results {
		if !r.OK() {
			t.Fatalf("%s failed: %v", redact(r.Token), r.Err)
		}
	}
}

func TestManager_AddRemoveRemoveAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	if got := f.stored(t, config.DefaultTokensKey)["A"]; got != "tok-A" {
		t.Fatalf("registry[A] = %q, want tok-A", got)
	}

	mustOK(t, f.mgr.RemoveTokens(ctx, "tok-A"))
	if _, ok := f.stored(t, config.DefaultTokensKey)["A"]; ok {
		t.Fatal("registry still holds A after remove")
	}

	results := f.mgr.RemoveTokens(ctx, "tok-A")
	if len(results) != 1 || results[0].OK() {
		t.Fatalf("second remove = %+v, want failure", results)
	}
	if !errors.Is(results[0].Err, token.ErrInvalidCredential) {
		t.Errorf("err = %v, want ErrInvalidCredential", results[0].Err)
	}
}

func TestManager_AddTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-A"))

	all := f.stored(t, config.DefaultTokensKey)
	if len(all) != 1 || all["A"] != "tok-A" {
		t.Errorf("registry = %v, want one entry for A", all)
	}
}

func TestManager_BatchContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results := f.mgr.AddTokens(ctx, "tok-A", "bogus", "tok-B")
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	want := []bool{true, false, true}
	for i, r := range results {
		if r.OK() != want[i] {
			t.Errorf("results[%d].OK() = %v, want %v (err %v)", i, r.OK(), want[i], r.Err)
		}
	}
	if results[2].TeamID != "B" || results[2].Team != "Team B" {
		t.Errorf("results[2] = %+v", results[2])
	}
	if !errors.Is(results[1].Err, token.ErrInvalidCredential) {
		t.Errorf("bogus err = %v, want ErrInvalidCredential", results[1].Err)
	}
}

func TestManager_Convergence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-B", "tok-C"))

	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	live := f.mgr.Supervisor().Live()
	if fmt.Sprint(live) != "[A B C]" {
		t.Errorf("live = %v, want [A B C]", live)
	}
	if f.mgr.LastPass().IsZero() {
		t.Error("LastPass should be set after a pass")
	}

	// Level-triggered: a second pass changes nothing.
	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	for _, tok := range []string{"tok-A", "tok-B", "tok-C"} {
		if n := f.driver.openCount(tok); n != 1 {
			t.Errorf("%s opened %d times, want 1", tok, n)
		}
	}
}

func TestManager_RemovedTeamIsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-B"))
	f.mgr.Reconcile(ctx)

	handle, _ := f.mgr.Supervisor().Handle("A")
	mustOK(t, f.mgr.RemoveTokens(ctx, "tok-A"))

	// Removal is storage-only.
	if _, ok := f.mgr.Supervisor().Handle("A"); !ok {
		t.Fatal("remove should not close the connection directly")
	}

	f.mgr.Reconcile(ctx)

	if _, ok := f.mgr.Supervisor().Handle("A"); ok {
		t.Error("A should be closed after the next pass")
	}
	if handle.Status() != connection.StatusDisconnected {
		t.Errorf("closed handle status = %q", handle.Status())
	}
	if _, ok := f.stored(t, config.DefaultTeamsKey)["A"]; ok {
		t.Error("no status should be recorded for a removed team")
	}
}

func TestManager_RestartClearsCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	f.mgr.Reconcile(ctx)
	before, _ := f.mgr.Supervisor().Handle("A")

	results := f.mgr.UpdateTokens(ctx, "tok-A")
	mustOK(t, results)
	if got := f.stored(t, config.DefaultTeamsKey)["A"]; got != token.CommandRestart {
		t.Fatalf("command = %q, want %q", got, token.CommandRestart)
	}

	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := f.stored(t, config.DefaultTeamsKey)["A"]; got != string(connection.StatusConnected) {
		t.Errorf("status = %q, want connected", got)
	}
	after, _ := f.mgr.Supervisor().Handle("A")
	if before.ID() == after.ID() {
		t.Error("restart should produce a new handle")
	}
}

func TestManager_UpdateUnknownToken(t *testing.T) {
	f := newFixture(t)

	results := f.mgr.UpdateTokens(context.Background(), "tok-B")
	if results[0].OK() {
		t.Fatal("update of unregistered token should fail")
	}
	if len(f.stored(t, config.DefaultTeamsKey)) != 0 {
		t.Error("no command should be written")
	}
}

func TestManager_PartialFailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-B", "tok-C"))
	f.driver.setFail("tok-B", true)

	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if live := f.mgr.Supervisor().Live(); fmt.Sprint(live) != "[A C]" {
		t.Errorf("live = %v, want [A C]", live)
	}
	if got := f.mgr.Supervisor().StatusOf("B"); got != connection.StatusError {
		t.Errorf("StatusOf(B) = %q, want error", got)
	}
	if got := f.stored(t, config.DefaultTeamsKey)["B"]; got != string(connection.StatusError) {
		t.Errorf("stored status for B = %q, want error", got)
	}

	// Retried on the next pass.
	f.driver.setFail("tok-B", false)
	f.mgr.Reconcile(ctx)
	if got := f.mgr.Supervisor().StatusOf("B"); got != connection.StatusConnected {
		t.Errorf("StatusOf(B) after retry = %q, want connected", got)
	}
}

func TestManager_StorageUnavailableAbortsPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	f.store.down.Store(true)

	err := f.mgr.Reconcile(ctx)
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if len(f.mgr.Supervisor().Live()) != 0 {
		t.Error("aborted pass should not open connections")
	}

	f.store.down.Store(false)
	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile after recovery: %v", err)
	}
	if len(f.mgr.Supervisor().Live()) != 1 {
		t.Error("expected A live after recovery")
	}
}

func TestManager_TokenRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	f.mgr.Reconcile(ctx)

	// Same team, new token.
	mustOK(t, f.mgr.AddTokens(ctx, "tok-A2"))
	f.mgr.Reconcile(ctx)

	if tok, _ := f.mgr.Supervisor().TokenOf("A"); tok != "tok-A2" {
		t.Errorf("live token = %q, want tok-A2", tok)
	}
	if n := f.driver.openCount("tok-A2"); n != 1 {
		t.Errorf("tok-A2 opened %d times, want 1", n)
	}
}

func TestManager_DroppedConnectionReopened(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	f.mgr.Reconcile(ctx)

	h, _ := f.mgr.Supervisor().Handle("A")
	h.(*fakeConn).set(connection.StatusError)

	f.mgr.Reconcile(ctx)

	cur, _ := f.mgr.Supervisor().Handle("A")
	if cur.ID() == h.ID() {
		t.Error("dropped connection should be replaced")
	}
	if got := f.stored(t, config.DefaultTeamsKey)["A"]; got != string(connection.StatusConnected) {
		t.Errorf("status = %q, want connected", got)
	}
}

func TestManager_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.Memory.Set(ctx, config.DefaultTokensKey, "A", "tok-A")
	f.store.Memory.Set(ctx, config.DefaultTokensKey, "B", "tok-B")

	if err := f.mgr.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if live := f.mgr.Supervisor().Live(); fmt.Sprint(live) != "[A B]" {
		t.Errorf("live = %v, want [A B]", live)
	}
	if got := f.mgr.Supervisor().StatusOf("A"); got != connection.StatusConnected {
		t.Errorf("StatusOf(A) = %q, want connected", got)
	}

	results := f.mgr.CheckTokens(ctx, "tok-A")
	mustOK(t, results)
	if got := results[0].String(); got != "Team A :: connected" {
		t.Errorf("check = %q, want %q", got, "Team A :: connected")
	}
}

func TestManager_CheckTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))

	results := f.mgr.CheckTokens(ctx, "tok-A", "bogus")
	if got := results[0].Status; got != token.StatusNotConnected {
		t.Errorf("status before any pass = %q, want not_connected", got)
	}
	if results[1].OK() {
		t.Error("bogus token should fail verification")
	}

	f.store.down.Store(true)
	results = f.mgr.CheckTokens(ctx, "tok-A")
	if !errors.Is(results[0].Err, storage.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", results[0].Err)
	}
}

func TestManager_ClearTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-B"))

	results, err := f.mgr.ClearTokens(ctx)
	if err != nil {
		t.Fatalf("ClearTokens: %v", err)
	}
	mustOK(t, results)
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
	if all := f.stored(t, config.DefaultTokensKey); len(all) != 0 {
		t.Errorf("registry = %v, want empty", all)
	}
}

func TestManager_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-B", "tok-A"))
	f.driver.setFail("tok-B", true)
	f.mgr.Start(ctx)

	results, err := f.mgr.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	got := fmt.Sprint(results[0], ", ", results[1])
	if want := "Team A :: connected, Team B :: error"; got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}
}

func TestManager_RestartAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A", "tok-B"))
	f.mgr.Reconcile(ctx)

	if err := f.mgr.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if n := f.driver.openCount("tok-A"); n != 2 {
		t.Errorf("tok-A opened %d times, want 2", n)
	}
	if len(f.mgr.Supervisor().Live()) != 2 {
		t.Error("expected both teams live after restart")
	}
}

func TestManager_MonitorAndStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))

	errCh := make(chan error, 1)
	go func() { errCh <- f.mgr.Monitor(ctx) }()

	// First pass runs immediately; a later add is picked up by a tick.
	deadline := time.Now().Add(2 * time.Second)
	for len(f.mgr.Supervisor().Live()) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	mustOK(t, f.mgr.AddTokens(ctx, "tok-B"))
	for len(f.mgr.Supervisor().Live()) != 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if live := f.mgr.Supervisor().Live(); len(live) != 2 {
		t.Fatalf("live = %v, want [A B]", live)
	}

	if err := f.mgr.Monitor(ctx); !errors.Is(err, ErrMonitorRunning) {
		t.Errorf("second Monitor = %v, want ErrMonitorRunning", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := f.mgr.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Monitor returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Stop")
	}

	if len(f.mgr.Supervisor().Live()) != 0 {
		t.Error("Stop should close every connection")
	}
	if got := f.stored(t, config.DefaultTeamsKey)["A"]; got != string(connection.StatusDisconnected) {
		t.Errorf("status after Stop = %q, want disconnected", got)
	}
}

func TestManager_MonitorContextCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.mgr.Monitor(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Monitor returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Result{TeamID: "A", Status: "connected"}, "Team A :: connected"},
		{Result{TeamID: "A"}, "Team A :: ok"},
		{Result{Token: "xoxb-12345678", Err: errors.New("boom")}, "Token ****5678 :: boom"},
		{Result{Token: "abc", Err: errors.New("boom")}, "Token **** :: boom"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

// gatedDriver blocks in Open until release is closed, then fails if its
// context was canceled in the meantime.
type gatedDriver struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	opens   atomic.Int32
}

func (d *gatedDriver) Open(ctx context.Context, tok string) (connection.Conn, error) {
	d.opens.Add(1)
	d.once.Do(func() { close(d.entered) })
	<-d.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &fakeConn{id: "gated-" + tok, status: connection.StatusConnected}, nil
}

func TestManager_StopWaitsForOpenInProgress(t *testing.T) {
	store := storage.NewMemory()
	bg := context.Background()
	store.Set(bg, config.DefaultTokensKey, "A", "tok-A")
	store.Set(bg, config.DefaultTokensKey, "B", "tok-B")

	d := &gatedDriver{entered: make(chan struct{}), release: make(chan struct{})}
	mgr := New(testConfig(), store, testVerifier(), d)

	ctx, cancel := context.WithCancel(bg)
	errCh := make(chan error, 1)
	go func() { errCh <- mgr.Reconcile(ctx) }()

	<-d.entered
	cancel()
	close(d.release)

	var err error
	select {
	case err = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Reconcile did not return")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	// The open in flight finished; the next team was never started.
	if live := mgr.Supervisor().Live(); fmt.Sprint(live) != "[A]" {
		t.Errorf("live = %v, want [A]", live)
	}
	if n := d.opens.Load(); n != 1 {
		t.Errorf("opens = %d, want 1", n)
	}
	all, _ := store.GetAll(bg, config.DefaultTeamsKey)
	if all["A"] != string(connection.StatusConnected) {
		t.Errorf("status for A = %q, want connected", all["A"])
	}
}

func TestManager_ZeroBackoffRetriesEveryPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustOK(t, f.mgr.AddTokens(ctx, "tok-A"))
	f.driver.setFail("tok-A", true)

	f.mgr.Reconcile(ctx)
	f.driver.setFail("tok-A", false)
	f.mgr.Reconcile(ctx)

	if got := f.mgr.Supervisor().StatusOf("A"); got != connection.StatusConnected {
		t.Errorf("StatusOf(A) = %q, want connected with backoff disabled", got)
	}
}
