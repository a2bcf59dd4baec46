package lifecycle

// Manager orchestrates the startup sequence, graceful shutdown, signal
// handling, and crash-recovery bookkeeping of spec.md §4.5. Grounded on
// the teacher's signal.Notify(os.Interrupt, syscall.SIGTERM) pattern
// (cmd/cli/mining_node.go) generalised into a reusable, testable manager
// rather than an inline goroutine.

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultShutdownTimeout = 30 * time.Second

// Component is a unit of startup work the manager tracks through
// Diagnostics. Init should return promptly once its work is scheduled;
// long-running service loops belong in their own goroutines, not in Init.
type Component struct {
	Name string
	Init func(ctx context.Context) error
	// Stop is invoked in registration-reverse order during shutdown. A
	// nil Stop is permitted for components with nothing to tear down.
	Stop func(ctx context.Context) error
}

// Manager drives one application instance's lifecycle.
type Manager struct {
	dir             string
	peerID          string
	shutdownTimeout time.Duration

	fsm         *FSM
	diagnostics *Diagnostics
	readiness   *Readiness

	components []Component
	startedAt  time.Time

	mu               sync.Mutex
	uncleanShutdowns uint64
	successfulShut   uint64
	tasksProcessed   uint64

	log *logrus.Entry
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithShutdownTimeout overrides the default 30s graceful-shutdown
// deadline (spec.md §6 shutdown_timeout).
func WithShutdownTimeout(d time.Duration) Option {
	return func(m *Manager) { m.shutdownTimeout = d }
}

// WithReadiness attaches a readiness surface, started alongside the
// manager and torn down on shutdown.
func WithReadiness(cfg ReadinessConfig) Option {
	return func(m *Manager) {
		m.readiness = NewReadiness(cfg, m.fsm, m.startedAt, nil)
	}
}

// NewManager constructs a Manager rooted at dir (the config directory
// holding the lifecycle state file), identified by peerID, verbose
// diagnostics logging as requested.
func NewManager(dir, peerID string, verbose bool, opts ...Option) *Manager {
	m := &Manager{
		dir:             dir,
		peerID:          peerID,
		shutdownTimeout: defaultShutdownTimeout,
		fsm:             NewFSM(),
		diagnostics:     NewDiagnostics(verbose),
		startedAt:       time.Now(),
		log:             logrus.WithField("component", "lifecycle.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a component to the startup/shutdown sequence. Must be
// called before Startup.
func (m *Manager) Register(c Component) {
	m.components = append(m.components, c)
	m.diagnostics.Register(c.Name)
}

// State returns the manager's current FSM state.
func (m *Manager) State() State { return m.fsm.Current() }

// Diagnostics exposes the startup diagnostics tracker for reporting.
func (m *Manager) Diagnostics() *Diagnostics { return m.diagnostics }

// RecordTask increments the tasks_processed counter persisted in the
// lifecycle state file. Per the Open Question decision recorded in
// SPEC_FULL.md §5, this counts task submissions.
func (m *Manager) RecordTask() {
	m.mu.Lock()
	m.tasksProcessed++
	m.mu.Unlock()
}

// Startup executes spec.md §4.5's startup sequence: crash-recovery check,
// component initialisation, transition to Active, state persistence, and
// (if configured) the readiness surface.
func (m *Manager) Startup(ctx context.Context) error {
	if err := m.fsm.Transition(Initialising); err != nil {
		return fmt.Errorf("%w: %w", ErrAlreadyRunning, err)
	}

	prior, err := LoadState(m.dir)
	if err != nil {
		_ = m.fsm.Transition(Error)
		return fmt.Errorf("lifecycle: load prior state: %w", err)
	}
	if prior != nil && prior.LastStopped == nil {
		m.log.WithField("peer_id", prior.PeerID).Warn("previous run did not shut down cleanly")
		m.mu.Lock()
		m.uncleanShutdowns = prior.UncleanShutdowns + 1
		m.successfulShut = prior.SuccessfulShutdowns
		m.tasksProcessed = prior.TasksProcessed
		m.mu.Unlock()
	} else if prior != nil {
		m.mu.Lock()
		m.uncleanShutdowns = prior.UncleanShutdowns
		m.successfulShut = prior.SuccessfulShutdowns
		m.tasksProcessed = prior.TasksProcessed
		m.mu.Unlock()
	}

	if err := m.fsm.Transition(Registering); err != nil {
		return err
	}

	for _, c := range m.components {
		m.diagnostics.Start(c.Name)
		if err := c.Init(ctx); err != nil {
			m.diagnostics.Finish(c.Name, err)
			_ = m.fsm.Transition(Error)
			return fmt.Errorf("%w: %s: %v", ErrComponentInitFailed, c.Name, err)
		}
		m.diagnostics.Finish(c.Name, nil)
	}

	if !m.diagnostics.AllSucceeded() {
		_ = m.fsm.Transition(Error)
		return ErrComponentInitFailed
	}

	if err := m.fsm.Transition(Active); err != nil {
		return err
	}

	if err := m.persistState(nil); err != nil {
		return fmt.Errorf("lifecycle: persist state: %w", err)
	}

	if m.readiness != nil {
		if err := m.readiness.Start(ctx); err != nil {
			return err
		}
	}

	m.log.WithField("peer_id", m.peerID).Info("lifecycle active")
	return nil
}

// persistState writes the lifecycle state file. lastStopped is nil while
// the node is running; set to the shutdown timestamp during Shutdown.
func (m *Manager) persistState(lastStopped *time.Time) error {
	m.mu.Lock()
	rec := &StateRecord{
		LastStarted:         m.startedAt,
		LastStopped:         lastStopped,
		PeerID:              m.peerID,
		TasksProcessed:      m.tasksProcessed,
		SuccessfulShutdowns: m.successfulShut,
		UncleanShutdowns:    m.uncleanShutdowns,
	}
	m.mu.Unlock()
	return SaveState(m.dir, rec)
}

// Shutdown executes spec.md §4.5's graceful shutdown sequence. If the
// machine is already Stopped, it is a no-op. inFlight, if non-nil, is
// waited on up to the configured deadline before teardown proceeds
// regardless.
func (m *Manager) Shutdown(ctx context.Context, inFlight <-chan struct{}) error {
	if m.fsm.Current() == Stopped {
		return nil
	}
	if err := m.fsm.Transition(ShuttingDown); err != nil {
		return err
	}

	if inFlight != nil {
		select {
		case <-inFlight:
		case <-time.After(m.shutdownTimeout):
			m.log.Warn("graceful shutdown deadline exceeded, proceeding anyway")
		}
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.successfulShut++
	m.mu.Unlock()
	if err := m.persistState(&now); err != nil {
		m.log.WithError(err).Warn("failed to persist shutdown state")
	}

	for _, name := range m.diagnostics.ReverseOrder() {
		var stop func(context.Context) error
		for _, c := range m.components {
			if c.Name == name {
				stop = c.Stop
				break
			}
		}
		if stop == nil {
			continue
		}
		if err := stop(ctx); err != nil {
			m.log.WithField("component", name).WithError(err).Warn("component stop failed")
		}
	}

	if m.readiness != nil {
		if err := m.readiness.Stop(ctx); err != nil {
			m.log.WithError(err).Warn("readiness teardown failed")
		}
	}

	return m.fsm.Transition(Stopped)
}

// WaitForSignal blocks until a termination or interrupt signal arrives,
// then runs Shutdown and returns.
func (m *Manager) WaitForSignal(ctx context.Context) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	signal.Stop(sig)
	return m.Shutdown(ctx, nil)
}
