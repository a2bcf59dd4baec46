package lifecycle

// Startup diagnostics tracker: records each registered component's
// Pending -> Initialising -> Success|Failed transitions with timing,
// grounded on the teacher's HealthLogger snapshot style in
// core/system_health_logging.go.

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ComponentStatus is a single component's current diagnostics state.
type ComponentStatus int

const (
	Pending ComponentStatus = iota
	ComponentInitialising
	Success
	Failed
)

func (s ComponentStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case ComponentInitialising:
		return "initialising"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ComponentReport is one component's recorded timing and outcome.
type ComponentReport struct {
	Name      string          `json:"name"`
	Status    ComponentStatus `json:"-"`
	StatusStr string          `json:"status"`
	StartedAt time.Time       `json:"started_at,omitempty"`
	Duration  time.Duration   `json:"duration_ns,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// Diagnostics tracks the startup sequence's component transitions.
// Verbose mode emits one log line per transition (spec.md §4.5 step 2).
type Diagnostics struct {
	mu      sync.Mutex
	order   []string
	reports map[string]*ComponentReport
	verbose bool
	log     *logrus.Entry
}

// NewDiagnostics constructs a diagnostics tracker.
func NewDiagnostics(verbose bool) *Diagnostics {
	return &Diagnostics{
		reports: make(map[string]*ComponentReport),
		verbose: verbose,
		log:     logrus.WithField("component", "lifecycle.diagnostics"),
	}
}

// Register installs a component in Pending state, preserving registration
// order for reporting and for reverse-order shutdown (spec.md §4.5 step 5).
func (d *Diagnostics) Register(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.reports[name]; exists {
		return
	}
	d.order = append(d.order, name)
	d.reports[name] = &ComponentReport{Name: name, Status: Pending, StatusStr: Pending.String()}
}

// Start marks a component Initialising and records its start time.
func (d *Diagnostics) Start(name string) {
	d.mu.Lock()
	r, ok := d.reports[name]
	if !ok {
		r = &ComponentReport{Name: name}
		d.order = append(d.order, name)
		d.reports[name] = r
	}
	r.Status = ComponentInitialising
	r.StatusStr = r.Status.String()
	r.StartedAt = time.Now()
	d.mu.Unlock()

	if d.verbose {
		d.log.WithField("name", name).Info("component initialising")
	}
}

// Finish records a component's outcome and duration since Start.
func (d *Diagnostics) Finish(name string, err error) {
	d.mu.Lock()
	r, ok := d.reports[name]
	if !ok {
		d.mu.Unlock()
		return
	}
	if !r.StartedAt.IsZero() {
		r.Duration = time.Since(r.StartedAt)
	}
	if err != nil {
		r.Status = Failed
		r.Err = err.Error()
	} else {
		r.Status = Success
	}
	r.StatusStr = r.Status.String()
	d.mu.Unlock()

	if d.verbose {
		entry := d.log.WithField("name", name).WithField("duration", r.Duration)
		if err != nil {
			entry.WithError(err).Warn("component initialisation failed")
		} else {
			entry.Info("component initialised")
		}
	}
}

// Report returns a snapshot of every tracked component in registration
// order.
func (d *Diagnostics) Report() []ComponentReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ComponentReport, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, *d.reports[name])
	}
	return out
}

// AllSucceeded reports whether every registered component reached
// Success (spec.md §4.5 step 3 precondition for transitioning to Active).
func (d *Diagnostics) AllSucceeded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.order {
		if d.reports[name].Status != Success {
			return false
		}
	}
	return len(d.order) > 0
}

// ReverseOrder returns registered component names in reverse
// registration order, for shutdown (spec.md §4.5 step 5).
func (d *Diagnostics) ReverseOrder() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.order))
	for i, name := range d.order {
		out[len(out)-1-i] = name
	}
	return out
}
