package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// failingBackend wraps another backend and, when failPut is set, fails
// every Put so durability/fallback tests can simulate an induced remote
// failure without a real network dependency. Get, Delete and Shutdown
// always delegate to the inner backend.
type failingBackend struct {
	name    string
	failPut bool
	inner   Backend
}

func (f *failingBackend) Name() string { return f.name }
func (f *failingBackend) Get(ctx context.Context, key string, c Consistency) ([]byte, error) {
	return f.inner.Get(ctx, key, c)
}
func (f *failingBackend) Put(ctx context.Context, key string, value []byte, c Consistency) error {
	if f.failPut {
		return errors.New("induced failure")
	}
	return f.inner.Put(ctx, key, value, c)
}
func (f *failingBackend) Delete(ctx context.Context, key string, c Consistency) error {
	return f.inner.Delete(ctx, key, c)
}
func (f *failingBackend) Shutdown(ctx context.Context) error { return f.inner.Shutdown(ctx) }

// TestRedundantWriteDurability reproduces spec.md §8 scenario 5: under
// Redundant(["local","remote"]) with remote induced to fail, put("k","v")
// still returns success, and a subsequent get("k") from local returns v.
func TestRedundantWriteDurability(t *testing.T) {
	local, err := NewLocal("")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	remoteInner, err := NewLocal("")
	if err != nil {
		t.Fatalf("new remote inner: %v", err)
	}
	remote := &failingBackend{name: "remote", failPut: true, inner: remoteInner}

	f := NewFacade(Policy{Kind: Redundant, List: []string{"local", "remote"}})
	f.Register(local)
	f.Register(remote)

	ctx := context.Background()
	if err := f.Put(ctx, "k", []byte("v"), Strong); err != nil {
		t.Fatalf("expected redundant put to succeed with one healthy backend: %v", err)
	}

	got, err := local.Get(ctx, "k", Strong)
	if err != nil {
		t.Fatalf("expected local to hold the value: %v", err)
	}
	if string(got) != "v" {
		t.Fatalf("expected local value %q, got %q", "v", got)
	}
}

func TestRedundantWriteFailsWhenAllBackendsFail(t *testing.T) {
	localInner, _ := NewLocal("")
	remoteInner, _ := NewLocal("")
	local := &failingBackend{name: "local", failPut: true, inner: localInner}
	remote := &failingBackend{name: "remote", failPut: true, inner: remoteInner}

	f := NewFacade(Policy{Kind: Redundant, List: []string{"local", "remote"}})
	f.Register(local)
	f.Register(remote)

	if err := f.Put(context.Background(), "k", []byte("v"), Strong); err == nil {
		t.Fatalf("expected put to fail when every backend fails")
	}
}

func TestAlwaysUseMissingBackendFails(t *testing.T) {
	f := NewFacade(Policy{Kind: AlwaysUse, Name: "ghost"})
	if _, err := f.Get(context.Background(), "k", Strong); !errors.Is(err, ErrBackendAbsent) {
		t.Fatalf("expected ErrBackendAbsent, got %v", err)
	}
}

func TestPreferCacheFallsBackToPrimary(t *testing.T) {
	cache := NewCache(16)
	primary, _ := NewLocal("")
	_ = primary.Put(context.Background(), "k", []byte("primary-value"), Strong)

	f := NewFacade(Policy{Kind: PreferCache, Cache: "cache", Primary: "local"})
	f.Register(cache)
	f.Register(primary)

	got, err := f.Get(context.Background(), "k", Strong)
	if err != nil {
		t.Fatalf("expected fallback to primary to succeed: %v", err)
	}
	if string(got) != "primary-value" {
		t.Fatalf("expected primary-value, got %q", got)
	}
}

func TestRoundRobinCyclesBackends(t *testing.T) {
	a, _ := NewLocal("")
	b, _ := NewLocal("")
	f := NewFacade(Policy{Kind: RoundRobin, List: []string{"a", "b"}})
	f.Register(&namedLocal{Local: a, name: "a"})
	f.Register(&namedLocal{Local: b, name: "b"})

	ctx := context.Background()
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		if err := f.Put(ctx, "k", []byte("v"), Strong); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if got, _ := a.Get(ctx, "k", Strong); string(got) == "v" {
		seen["a"]++
	}
	if got, _ := b.Get(ctx, "k", Strong); string(got) == "v" {
		seen["b"]++
	}
	if seen["a"] == 0 || seen["b"] == 0 {
		t.Fatalf("expected round robin to have touched both backends, saw %v", seen)
	}
}

// namedLocal lets a test register two *Local instances under distinct
// façade names without NewLocal exposing a settable name itself.
type namedLocal struct {
	*Local
	name string
}

func (n *namedLocal) Name() string { return n.name }

func TestLocalCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	l, err := NewLocal(path)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	ctx := context.Background()
	if err := l.Put(ctx, "k1", []byte("v1"), Strong); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := l.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	reloaded, err := NewLocal(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, err := reloaded.Get(ctx, "k1", Strong)
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	ctx := context.Background()
	_ = c.Put(ctx, "a", []byte("1"), Eventual)
	_ = c.Put(ctx, "b", []byte("2"), Eventual)
	_, _ = c.Get(ctx, "a", Eventual) // touch a, making b the LRU entry
	_ = c.Put(ctx, "c", []byte("3"), Eventual)

	if _, err := c.Get(ctx, "b", Eventual); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected b to have been evicted")
	}
	if _, err := c.Get(ctx, "a", Eventual); err != nil {
		t.Fatalf("expected a to still be cached: %v", err)
	}
}

func TestShutdownIsBestEffortAndComposite(t *testing.T) {
	goodInner, _ := NewLocal("")
	bad := &shutdownFailBackend{name: "bad"}
	good := &namedLocal{Local: goodInner, name: "good"}

	f := NewFacade(Policy{Kind: AlwaysUse, Name: "good"})
	f.Register(good)
	f.Register(bad)

	err := f.Shutdown(context.Background())
	if err == nil {
		t.Fatalf("expected composite shutdown error")
	}
}

type shutdownFailBackend struct{ name string }

func (b *shutdownFailBackend) Name() string { return b.name }
func (b *shutdownFailBackend) Get(context.Context, string, Consistency) ([]byte, error) {
	return nil, ErrNotFound
}
func (b *shutdownFailBackend) Put(context.Context, string, []byte, Consistency) error { return nil }
func (b *shutdownFailBackend) Delete(context.Context, string, Consistency) error      { return nil }
func (b *shutdownFailBackend) Shutdown(context.Context) error {
	return errors.New("shutdown induced failure")
}
