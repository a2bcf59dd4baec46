package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults per spec.md §3 Replay detector state.
const (
	DefaultReplayCapacity = 1000
	DefaultReplayWindow   = 300 * time.Second
	// maxClockDrift bounds how far in the future a timestamp may claim to
	// be before VerifyWithReplayGuard rejects it outright.
	maxClockDrift = 30 * time.Second
)

type replayEntry struct {
	nonce     uint64
	timestamp time.Time
	seenAt    time.Time
}

// ReplayGuard is a per-identity, bounded-capacity record of accepted
// (message-id, nonce, timestamp) triples. A triple is accepted at most
// once inside the configured window.
type ReplayGuard struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	seen     map[string]replayEntry
	order    []string // FIFO eviction order
}

// NewReplayGuard constructs a guard with the given bounded capacity and
// time window.
func NewReplayGuard(capacity int, window time.Duration) *ReplayGuard {
	return &ReplayGuard{
		capacity: capacity,
		window:   window,
		seen:     make(map[string]replayEntry, capacity),
	}
}

// Check rejects a triple already accepted within the window, or whose
// timestamp lies outside the allowed drift, then records it.
func (g *ReplayGuard) Check(messageID string, nonce uint64, timestamp time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if timestamp.After(now.Add(maxClockDrift)) || now.Sub(timestamp) > g.window {
		return fmt.Errorf("%w: timestamp outside allowed window", ErrReplayDetected)
	}

	if prev, ok := g.seen[messageID]; ok {
		if now.Sub(prev.seenAt) <= g.window && prev.nonce == nonce && prev.timestamp.Equal(timestamp) {
			return fmt.Errorf("%w: message %q already accepted", ErrReplayDetected, messageID)
		}
	}

	g.record(messageID, replayEntry{nonce: nonce, timestamp: timestamp, seenAt: now})
	g.evictExpired(now)
	return nil
}

func (g *ReplayGuard) record(messageID string, entry replayEntry) {
	if _, exists := g.seen[messageID]; !exists {
		g.order = append(g.order, messageID)
	}
	g.seen[messageID] = entry

	for len(g.order) > g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
}

func (g *ReplayGuard) evictExpired(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for _, id := range g.order {
		if entry, ok := g.seen[id]; ok && entry.seenAt.Before(cutoff) {
			delete(g.seen, id)
			continue
		}
		g.order[i] = id
		i++
	}
	g.order = g.order[:i]
}

// NewMessageID generates a fresh message identifier for VerifyWithReplayGuard
// and the network layer's broadcast correlation-id field.
func NewMessageID() string {
	return uuid.NewString()
}

// Len reports the number of triples currently tracked (test/diagnostic aid).
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
