package lifecycle

import (
	"context"
	"testing"
	"time"
)

// TestFreshStartCleanExit reproduces spec.md §8 scenario 1: remove the
// state file, call startup(), then immediately shutdown(). Expect a
// state file with last_started/last_stopped around now,
// successful_shutdowns=1, unclean_shutdowns=0.
func TestFreshStartCleanExit(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "peer-fresh", false)
	m.Register(Component{Name: "noop", Init: func(context.Context) error { return nil }})

	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := m.Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	rec, err := LoadState(dir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a persisted state file")
	}
	if rec.LastStopped == nil {
		t.Fatalf("expected last_stopped to be set after clean shutdown")
	}
	if rec.SuccessfulShutdowns != 1 {
		t.Fatalf("expected successful_shutdowns=1, got %d", rec.SuccessfulShutdowns)
	}
	if rec.UncleanShutdowns != 0 {
		t.Fatalf("expected unclean_shutdowns=0, got %d", rec.UncleanShutdowns)
	}
	if time.Since(rec.LastStarted) > time.Minute {
		t.Fatalf("expected last_started to be roughly now, got %v", rec.LastStarted)
	}
}

// TestCrashDetection reproduces spec.md §8 scenario 2: a state file with
// last_stopped=null and peer_id="x" already on disk; calling startup()
// should warn and record an unclean shutdown while leaving peer_id alone
// (the manager's own peer_id is a constructor argument, independent of
// the stale file's).
func TestCrashDetection(t *testing.T) {
	dir := t.TempDir()
	if err := SaveState(dir, &StateRecord{
		LastStarted: time.Now().Add(-time.Hour),
		LastStopped: nil,
		PeerID:      "x",
	}); err != nil {
		t.Fatalf("seed crashed state: %v", err)
	}

	m := NewManager(dir, "x", false)
	m.Register(Component{Name: "noop", Init: func(context.Context) error { return nil }})

	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	m.mu.Lock()
	unclean := m.uncleanShutdowns
	m.mu.Unlock()
	if unclean != 1 {
		t.Fatalf("expected in-memory unclean_shutdowns=1, got %d", unclean)
	}
}

// TestShutdownTimeoutProceeds reproduces spec.md §8 scenario 6: a 100ms
// shutdown deadline with an in-flight operation that takes far longer;
// shutdown must still return promptly and record the successful
// shutdown.
func TestShutdownTimeoutProceeds(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "peer-timeout", false, WithShutdownTimeout(100*time.Millisecond))
	m.Register(Component{Name: "noop", Init: func(context.Context) error { return nil }})

	if err := m.Startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}

	neverDone := make(chan struct{}) // simulates an operation that takes much longer than the deadline

	start := time.Now()
	if err := m.Shutdown(context.Background(), neverDone); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("expected shutdown to proceed near the deadline, took %v", elapsed)
	}

	rec, err := LoadState(dir)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if rec.SuccessfulShutdowns != 1 {
		t.Fatalf("expected successful_shutdowns=1 despite timeout, got %d", rec.SuccessfulShutdowns)
	}
}

func TestShutdownNoopWhenAlreadyStopped(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "peer-idle", false)
	if err := m.Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("expected no-op shutdown on a never-started manager, got %v", err)
	}
}

func TestComponentFailureTransitionsToError(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "peer-fail", false)
	m.Register(Component{Name: "bad", Init: func(context.Context) error {
		return errFailingComponent
	}})

	if err := m.Startup(context.Background()); err == nil {
		t.Fatalf("expected startup to fail")
	}
	if m.State() != Error {
		t.Fatalf("expected state Error, got %s", m.State())
	}
}

var errFailingComponent = &componentError{"induced failure"}

type componentError struct{ msg string }

func (e *componentError) Error() string { return e.msg }
