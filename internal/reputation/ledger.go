// Package reputation implements C3: an in-memory, per-peer reputation
// score with tier-derived task and connection quotas. Grounded on the
// teacher's single-RWMutex-guarded map pattern used throughout
// core/peer_management.go for its peer registry.
package reputation

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	// StartingScore is installed for a newly registered peer (spec.md §3).
	StartingScore = 100
	minScore      = 0
	maxScore      = 1000

	// Scoring policy deltas (spec.md §4.3, baseline/tunable).
	DeltaTaskSuccess       = 10
	DeltaTaskFailure       = -5
	DeltaProtocolViolation = -50
	DeltaSignatureFault    = -100
)

// Tier buckets a score into a quota class (spec.md §3).
type Tier int

const (
	Newcomer Tier = iota
	Established
	Trusted
	Elite
)

func (t Tier) String() string {
	switch t {
	case Newcomer:
		return "newcomer"
	case Established:
		return "established"
	case Trusted:
		return "trusted"
	case Elite:
		return "elite"
	default:
		return "unknown"
	}
}

// Quota holds the per-hour task quota and concurrent-connection quota
// associated with a tier.
type Quota struct {
	TaskPerHour int
	Connections int
}

var tierQuota = map[Tier]Quota{
	Newcomer:    {TaskPerHour: 10, Connections: 5},
	Established: {TaskPerHour: 50, Connections: 20},
	Trusted:     {TaskPerHour: 200, Connections: 50},
	Elite:       {TaskPerHour: 1000, Connections: 100},
}

// TierFor buckets a score in [0,1000] into its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 750:
		return Elite
	case score >= 500:
		return Trusted
	case score >= 250:
		return Established
	default:
		return Newcomer
	}
}

// QuotaFor returns the task/connection quota for a tier.
func QuotaFor(t Tier) Quota {
	return tierQuota[t]
}

func clamp(score int) int {
	if score < minScore {
		return minScore
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// Ledger is an in-memory peer-id -> score map guarded by a single
// reader-writer lock (spec.md §9 Shared mutable state).
type Ledger struct {
	mu     sync.RWMutex
	scores map[string]int
}

// NewLedger constructs an empty reputation ledger.
func NewLedger() *Ledger {
	return &Ledger{scores: make(map[string]int)}
}

// Register idempotently installs the starting score for peerID.
func (l *Ledger) Register(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.scores[peerID]; !ok {
		l.scores[peerID] = StartingScore
	}
}

// Known reports whether peerID has an entry in the ledger.
func (l *Ledger) Known(peerID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.scores[peerID]
	return ok
}

// GetScore returns peerID's current score, or 0 if unknown.
func (l *Ledger) GetScore(peerID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scores[peerID]
}

// GetTier returns the tier derived from peerID's current score.
func (l *Ledger) GetTier(peerID string) Tier {
	return TierFor(l.GetScore(peerID))
}

// Increase adds delta to peerID's score, saturating at 1000. Registers
// the peer at the starting score first if unknown.
func (l *Ledger) Increase(peerID string, delta int) int {
	return l.adjust(peerID, delta)
}

// Decrease subtracts delta from peerID's score, saturating at 0.
func (l *Ledger) Decrease(peerID string, delta int) int {
	return l.adjust(peerID, -delta)
}

func (l *Ledger) adjust(peerID string, delta int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.scores[peerID]
	if !ok {
		current = StartingScore
	}
	current = clamp(current + delta)
	l.scores[peerID] = current
	return current
}

// CanAcceptTask reports whether peerID's tier quota allows one more task
// given currentTasksLastHour already processed.
func (l *Ledger) CanAcceptTask(peerID string, currentTasksLastHour int) bool {
	tier := l.GetTier(peerID)
	return currentTasksLastHour < QuotaFor(tier).TaskPerHour
}

// Snapshot is the checkpointed representation of a ledger. The ledger
// only produces and consumes it; nothing in the repository writes it to
// the storage façade, at shutdown or on an interval.
type Snapshot struct {
	Scores    map[string]int `json:"scores"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot copies the current score map for checkpointing.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	scores := make(map[string]int, len(l.scores))
	for k, v := range l.scores {
		scores[k] = v
	}
	return Snapshot{Scores: scores, Timestamp: time.Now().UTC()}
}

// MarshalSnapshot serialises a checkpoint ready for the storage façade.
func (l *Ledger) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

// Restore replaces the ledger's contents with a previously checkpointed
// snapshot, clamping each score to [0,1000]. No startup path loads a
// checkpoint from storage and calls it.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scores = make(map[string]int, len(snap.Scores))
	for k, v := range snap.Scores {
		l.scores[k] = clamp(v)
	}
}

// UnmarshalSnapshot parses and installs a checkpoint produced by
// MarshalSnapshot.
func (l *Ledger) UnmarshalSnapshot(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	l.Restore(snap)
	return nil
}
