// Package admission implements C2: Sybil-resistant admission of new peer
// connections via proof-of-work, subnet diversity, and reputation floor
// checks, invoked from the transport's handshake callback
// (internal/network.Node.HandlePeerFound).
package admission

import (
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/p2p-ai-agents/agentnode/internal/identity"
	"github.com/p2p-ai-agents/agentnode/internal/reputation"
)

// Candidate is the input to an admission decision (spec.md §4.2).
type Candidate struct {
	RemoteAddr net.IP
	PublicKey  []byte
	Proof      Proof
}

// Config tunes the admission gate.
type Config struct {
	// DifficultyFloor is the minimum proof-of-work difficulty this node
	// accepts, independent of the [MinDifficulty,MaxDifficulty] bound.
	DifficultyFloor uint32
	// ReputationFloor is the minimum score a known peer must hold.
	ReputationFloor int
}

// DefaultConfig matches spec.md §4.2's stated floors.
func DefaultConfig() Config {
	return Config{DifficultyFloor: MinDifficulty, ReputationFloor: 0}
}

// Admitter gates peer admission, combining proof-of-work verification,
// subnet diversity, and the reputation ledger.
type Admitter struct {
	cfg        Config
	diversity  *DiversityLedger
	reputation *reputation.Ledger
	failures   *recentFailures
	log        *logrus.Entry
}

// NewAdmitter constructs an Admitter over the given reputation ledger.
func NewAdmitter(cfg Config, rep *reputation.Ledger) *Admitter {
	return &Admitter{
		cfg:        cfg,
		diversity:  NewDiversityLedger(),
		reputation: rep,
		failures:   newRecentFailures(256),
		log:        logrus.WithField("component", "admission"),
	}
}

// Evaluate runs the admission procedure in order (spec.md §4.2): any
// failure rejects and nothing is registered. On success the candidate's
// subnet counter is incremented and its reputation entry installed at the
// starting value if previously unknown.
func (a *Admitter) Evaluate(ctx context.Context, c Candidate) error {
	peerID := identity.PeerIDFromPublicKey(c.PublicKey)

	if a.failures.recentlyFailed(peerID) {
		return fmt.Errorf("%w: recently failed admission, not retrying immediately", ErrProofOfWorkFailed)
	}

	if c.Proof.Difficulty < a.cfg.DifficultyFloor {
		a.failures.record(peerID)
		return fmt.Errorf("%w: difficulty %d below configured floor %d", ErrProofOfWorkFailed, c.Proof.Difficulty, a.cfg.DifficultyFloor)
	}
	if err := VerifyProof(c.PublicKey, c.Proof); err != nil {
		a.failures.record(peerID)
		return err
	}

	if err := a.diversity.Add(c.RemoteAddr); err != nil {
		return err
	}

	if a.reputation.Known(peerID) {
		score := a.reputation.GetScore(peerID)
		if score < a.cfg.ReputationFloor {
			a.diversity.Remove(c.RemoteAddr)
			return fmt.Errorf("%w: score %d below floor %d", ErrReputationTooLow, score, a.cfg.ReputationFloor)
		}
	} else {
		a.reputation.Register(peerID)
	}

	a.log.WithField("peer_id", peerID).Info("peer admitted")
	return nil
}

// Disconnect decrements the subnet counter for a departing peer. It does
// not affect reputation, which persists across connections.
func (a *Admitter) Disconnect(remoteAddr net.IP) {
	a.diversity.Remove(remoteAddr)
}

// Diversity exposes the underlying ledger for diagnostics/tests.
func (a *Admitter) Diversity() *DiversityLedger { return a.diversity }
