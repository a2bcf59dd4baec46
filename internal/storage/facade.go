// Package storage implements C4: a uniform get/put/delete/shutdown façade
// routed over a heterogeneous set of backends according to a configurable
// policy. Grounded on the teacher's core/storage.go cache-then-gateway
// fallback shape, generalised to an arbitrary backend set and routing
// policy per spec.md §4.4.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Consistency is the per-call consistency level passed through to
// backends. A backend that can only offer one level documents it.
type Consistency int

const (
	Eventual Consistency = iota
	Strong
)

// Backend is the capability set every storage backend and plugin-created
// store must implement (spec.md §4.4, §9 Plugin polymorphism).
type Backend interface {
	Name() string
	Get(ctx context.Context, key string, c Consistency) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, c Consistency) error
	Delete(ctx context.Context, key string, c Consistency) error
	Shutdown(ctx context.Context) error
}

// ErrNotFound is returned when no selected backend holds the key.
var ErrNotFound = errors.New("storage: key not found")

// ErrBackendAbsent is returned when a policy names a backend that is not
// registered in the façade.
var ErrBackendAbsent = errors.New("storage: backend not registered")

// PolicyKind selects among the routing variants of spec.md §4.4.
type PolicyKind int

const (
	AlwaysUse PolicyKind = iota
	PreferCache
	Redundant
	RoundRobin
	FirstAvailable
	Custom
)

// Policy is the sum type describing how operations route across
// backends. Only the fields relevant to Kind are consulted.
type Policy struct {
	Kind    PolicyKind
	Name    string   // AlwaysUse
	Cache   string   // PreferCache
	Primary string   // PreferCache
	List    []string // Redundant, RoundRobin, FirstAvailable, Custom
	Tag     string   // Custom (a label only; routing uses List)
}

// Facade routes storage operations over a registered backend set per the
// active Policy. The backend map is guarded by a single reader/writer
// lock (spec.md §9 Shared mutable state); round-robin's cursor is atomic.
type Facade struct {
	mu       sync.RWMutex
	backends map[string]Backend
	policy   Policy
	rrIndex  uint64

	metrics *Metrics
	log     *logrus.Entry
}

// NewFacade constructs an empty façade with the given initial policy.
func NewFacade(policy Policy) *Facade {
	return &Facade{
		backends: make(map[string]Backend),
		policy:   policy,
		metrics:  NewMetrics(),
		log:      logrus.WithField("component", "storage"),
	}
}

// Register installs a backend under its own name, overwriting any prior
// backend registered with that name. A registered Cache backend is pointed
// at the façade's own metrics so its hit/miss counters feed the same
// collector as every other operation, rather than sitting disconnected.
func (f *Facade) Register(b Backend) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends[b.Name()] = b
	if cache, ok := b.(*Cache); ok {
		cache.SetMetrics(f.metrics)
	}
}

// SetPolicy swaps the active routing policy at runtime.
func (f *Facade) SetPolicy(p Policy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policy = p
}

// Metrics exposes the façade's prometheus-backed counters.
func (f *Facade) Metrics() *Metrics { return f.metrics }

// candidates resolves the ordered list of backends the active policy
// selects for an operation, skipping any named backend that is not
// registered (present-only semantics per spec.md §4.4).
func (f *Facade) candidates() ([]Backend, error) {
	switch f.policy.Kind {
	case AlwaysUse:
		b, ok := f.backends[f.policy.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBackendAbsent, f.policy.Name)
		}
		return []Backend{b}, nil

	case PreferCache:
		var out []Backend
		if b, ok := f.backends[f.policy.Cache]; ok {
			out = append(out, b)
		}
		if b, ok := f.backends[f.policy.Primary]; ok {
			out = append(out, b)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: neither %s nor %s present", ErrBackendAbsent, f.policy.Cache, f.policy.Primary)
		}
		return out, nil

	case Redundant, FirstAvailable:
		var out []Backend
		for _, name := range f.policy.List {
			if b, ok := f.backends[name]; ok {
				out = append(out, b)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: none of %v present", ErrBackendAbsent, f.policy.List)
		}
		if f.policy.Kind == FirstAvailable {
			return out[:1], nil
		}
		return out, nil

	case RoundRobin:
		var present []Backend
		for _, name := range f.policy.List {
			if b, ok := f.backends[name]; ok {
				present = append(present, b)
			}
		}
		if len(present) == 0 {
			return nil, fmt.Errorf("%w: none of %v present", ErrBackendAbsent, f.policy.List)
		}
		idx := atomic.AddUint64(&f.rrIndex, 1) - 1
		return []Backend{present[idx%uint64(len(present))]}, nil

	case Custom:
		// Reserved for user policies; currently "first present".
		return f.firstPresentAny()

	default:
		return nil, fmt.Errorf("storage: unknown policy kind %d", f.policy.Kind)
	}
}

func (f *Facade) firstPresentAny() ([]Backend, error) {
	for _, name := range f.policy.List {
		if b, ok := f.backends[name]; ok {
			return []Backend{b}, nil
		}
	}
	return nil, fmt.Errorf("%w: none of %v present", ErrBackendAbsent, f.policy.List)
}

// Get reads a key, trying candidate backends in order and returning the
// first success. If none succeeds it returns the last candidate's error,
// which is ErrNotFound when that candidate did not hold the key.
func (f *Facade) Get(ctx context.Context, key string, c Consistency) ([]byte, error) {
	f.mu.RLock()
	cands, err := f.candidates()
	f.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	f.metrics.recordOp()
	var lastErr error
	for _, b := range cands {
		v, err := b.Get(ctx, key, c)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, ErrNotFound) {
			lastErr = ErrNotFound
			continue
		}
		f.metrics.recordError(b.Name())
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNotFound
	}
	return nil, lastErr
}

// Put writes a key. Under Redundant it fans out to every candidate and
// succeeds if any one does; under every other policy the failure-then-
// retry fallback chain applies in candidate order.
func (f *Facade) Put(ctx context.Context, key string, value []byte, c Consistency) error {
	f.mu.RLock()
	cands, err := f.candidates()
	policy := f.policy.Kind
	f.mu.RUnlock()
	if err != nil {
		return err
	}

	f.metrics.recordOp()

	if policy == Redundant {
		var succeeded bool
		var lastErr error
		for _, b := range cands {
			if err := b.Put(ctx, key, value, c); err != nil {
				f.metrics.recordError(b.Name())
				lastErr = err
				continue
			}
			succeeded = true
		}
		if succeeded {
			return nil
		}
		return lastErr
	}

	var lastErr error
	for _, b := range cands {
		if err := b.Put(ctx, key, value, c); err != nil {
			f.metrics.recordError(b.Name())
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Delete removes a key using the same fallback-chain semantics as Put,
// except Redundant also fans out and succeeds if any backend succeeds.
func (f *Facade) Delete(ctx context.Context, key string, c Consistency) error {
	f.mu.RLock()
	cands, err := f.candidates()
	policy := f.policy.Kind
	f.mu.RUnlock()
	if err != nil {
		return err
	}

	f.metrics.recordOp()

	if policy == Redundant {
		var succeeded bool
		var lastErr error
		for _, b := range cands {
			if err := b.Delete(ctx, key, c); err != nil {
				f.metrics.recordError(b.Name())
				lastErr = err
				continue
			}
			succeeded = true
		}
		if succeeded {
			return nil
		}
		return lastErr
	}

	var lastErr error
	for _, b := range cands {
		if err := b.Delete(ctx, key, c); err != nil {
			f.metrics.recordError(b.Name())
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Shutdown is best-effort: every registered backend is shut down even if
// one fails, and a composite error is returned if any did.
func (f *Facade) Shutdown(ctx context.Context) error {
	f.mu.RLock()
	backends := make([]Backend, 0, len(f.backends))
	for _, b := range f.backends {
		backends = append(backends, b)
	}
	f.mu.RUnlock()

	var errs []error
	for _, b := range backends {
		if err := b.Shutdown(ctx); err != nil {
			f.log.WithField("backend", b.Name()).WithError(err).Warn("backend shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
