package identity

import "errors"

// Error kinds surfaced distinctly per the error taxonomy: callers switch on
// errors.Is, never on message text.
var (
	// ErrInvalidKey is returned when key material has the wrong length or
	// cannot be parsed.
	ErrInvalidKey = errors.New("identity: invalid key")

	// ErrDecryption is returned when the AEAD open fails: wrong key or a
	// corrupted identity.key file.
	ErrDecryption = errors.New("identity: decryption failed")

	// ErrCredentialStoreUnavailable is returned when the backing credential
	// store cannot be reached. The process must not start.
	ErrCredentialStoreUnavailable = errors.New("identity: credential store unavailable")

	// ErrReplayDetected is returned by VerifyWithReplayGuard for a triple
	// already seen within the window, or outside the allowed clock drift.
	ErrReplayDetected = errors.New("identity: replay detected")

	// ErrVerification is returned when a signature fails to verify.
	ErrVerification = errors.New("identity: signature verification failed")

	// ErrNotFound is returned when load is attempted against a directory
	// with no persisted identity.
	ErrNotFound = errors.New("identity: no identity found")
)
