package admission

// recentFailures is the supplemental bucket from SPEC_FULL.md §3 C2
// Admission: a small bounded LRU of peer IDs that recently failed
// admission, so a peer hammering the gate with bad proofs is rejected
// immediately rather than re-running the expensive verification path
// on every retry. Grounded on the same bounded-FIFO-map shape as
// internal/identity's ReplayGuard.

import (
	"container/list"
	"sync"
	"time"
)

const recentFailureTTL = 10 * time.Second

type recentFailures struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type failureEntry struct {
	peerID string
	at     time.Time
}

func newRecentFailures(capacity int) *recentFailures {
	return &recentFailures{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

// record notes peerID as having just failed admission.
func (f *recentFailures) record(peerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if el, ok := f.index[peerID]; ok {
		f.order.Remove(el)
	}
	el := f.order.PushFront(failureEntry{peerID: peerID, at: time.Now()})
	f.index[peerID] = el

	for f.order.Len() > f.capacity {
		oldest := f.order.Back()
		f.order.Remove(oldest)
		delete(f.index, oldest.Value.(failureEntry).peerID)
	}
}

// recentlyFailed reports whether peerID failed within the TTL window,
// pruning peerID's own entry if it has expired. Other expired entries
// stay until record evicts them for capacity.
func (f *recentFailures) recentlyFailed(peerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	el, ok := f.index[peerID]
	if !ok {
		return false
	}
	entry := el.Value.(failureEntry)
	if time.Since(entry.at) > recentFailureTTL {
		f.order.Remove(el)
		delete(f.index, peerID)
		return false
	}
	return true
}
