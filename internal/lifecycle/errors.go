package lifecycle

import "errors"

var (
	// ErrComponentInitFailed is returned when one or more registered
	// startup components finished in the Failed state.
	ErrComponentInitFailed = errors.New("lifecycle: component initialisation failed")
	// ErrAlreadyRunning is returned starting a manager that is not Stopped.
	ErrAlreadyRunning = errors.New("lifecycle: already running")
)
