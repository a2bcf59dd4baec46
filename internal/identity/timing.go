package identity

import (
	"math/rand"
	"time"
)

// jitter sleeps for a small, randomised duration to blunt timing
// side-channels on the verification path (spec.md §4.1).
func jitter() {
	time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
}

// VerifyItem pairs a message/signature with the identity that should verify
// it, for use with BatchVerify.
type VerifyItem struct {
	Identity  *Identity
	Message   []byte
	Signature []byte
}

// BatchVerify verifies a batch of (identity, message, signature) triples in
// a shuffled order, so that per-item ordering in the results cannot be
// inferred from wall-clock observation of the call. Results are returned
// in the original input order.
func BatchVerify(items []VerifyItem) []bool {
	order := rand.Perm(len(items))
	results := make([]bool, len(items))
	for _, idx := range order {
		it := items[idx]
		results[idx] = it.Identity.Verify(it.Message, it.Signature)
	}
	return results
}
