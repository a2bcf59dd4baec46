package admission

// Proof-of-work admission gate, grounded on the teacher's use of
// golang.org/x/crypto primitives throughout core/security.go, adapted here
// to argon2's memory-hard KDF (cost 64 MiB, 3 iterations, parallelism 1)
// rather than a plain hash, per spec.md §4.2.

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/argon2"
)

const (
	// MinDifficulty and MaxDifficulty bound the accepted leading-zero-bit
	// requirement (spec.md §3 Proof-of-work record invariant).
	MinDifficulty uint32 = 16
	MaxDifficulty uint32 = 24

	argonThreads = 1
	argonKeyLen  = 32

	// yieldEvery bounds how many nonce attempts run between cancellation
	// checks. A digest computation in progress is not interrupted, so
	// cancellation is observed only after up to yieldEvery argon2id
	// evaluations at the configured cost.
	yieldEvery = 64
)

// argonTime and argonMemory are the argon2id cost parameters (spec.md
// §4.2: cost 64 MiB, 3 iterations). They are package vars rather than
// consts so tests can substitute a cheap cost profile instead of paying
// the full memory-hard search at difficulty 16+.
var (
	argonTime   uint32 = 3
	argonMemory uint32 = 64 * 1024 // KiB, i.e. 64 MiB
)

// Proof is the admission-request payload described in spec.md §3.
type Proof struct {
	Nonce      uint64
	Difficulty uint32
	Digest     [32]byte
}

// computeDigest hashes public-key-bytes ‖ nonce_le_bytes with argon2id.
func computeDigest(pub []byte, nonce uint64) [32]byte {
	var nb [8]byte
	binary.LittleEndian.PutUint64(nb[:], nonce)
	salt := append(append([]byte(nil), pub...), nb[:]...)
	sum := argon2.IDKey(salt, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	var out [32]byte
	copy(out[:], sum)
	return out
}

func leadingZeroBits(digest [32]byte) uint32 {
	var total uint32
	for _, b := range digest {
		if b == 0 {
			total += 8
			continue
		}
		total += uint32(bits.LeadingZeros8(b))
		break
	}
	return total
}

// GenerateProof searches for a nonce such that the argon2id digest of
// (pub ‖ nonce) has at least difficulty leading zero bits. The search
// yields to ctx cancellation at least every yieldEvery attempts, and never
// holds a lock while running (spec.md §9).
func GenerateProof(ctx context.Context, pub []byte, difficulty uint32) (*Proof, error) {
	if difficulty < MinDifficulty || difficulty > MaxDifficulty {
		return nil, fmt.Errorf("%w: difficulty %d out of range [%d,%d]", ErrProofOfWorkFailed, difficulty, MinDifficulty, MaxDifficulty)
	}
	for nonce := uint64(0); ; nonce++ {
		if nonce%yieldEvery == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		digest := computeDigest(pub, nonce)
		if leadingZeroBits(digest) >= difficulty {
			return &Proof{Nonce: nonce, Difficulty: difficulty, Digest: digest}, nil
		}
	}
}

// VerifyProof recomputes the digest and checks it matches proof bit-exact
// and carries at least proof.Difficulty leading zero bits.
func VerifyProof(pub []byte, proof Proof) error {
	if proof.Difficulty < MinDifficulty || proof.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: difficulty %d out of range", ErrProofOfWorkFailed, proof.Difficulty)
	}
	digest := computeDigest(pub, proof.Nonce)
	if digest != proof.Digest {
		return fmt.Errorf("%w: digest mismatch", ErrProofOfWorkFailed)
	}
	if leadingZeroBits(digest) < proof.Difficulty {
		return fmt.Errorf("%w: insufficient leading zero bits", ErrProofOfWorkFailed)
	}
	return nil
}
