package session

import "errors"

var (
	ErrNotStarted         = errors.New("session not started")
	ErrInvalidTransition  = errors.New("invalid phase transition")
	ErrNavigationBlocked  = errors.New("stop the recording before moving on")
	ErrInputDisabled      = errors.New("answer input is disabled in the current phase")
	ErrNotComplete        = errors.New("session is not complete")
	ErrUnknownQuestion    = errors.New("unknown question")
	ErrInvalidOption      = errors.New("option not offered for this question")
	ErrNoRecovery         = errors.New("no progress to recover")
	ErrRecoveryPending    = errors.New("answer the saved progress offer first")
	ErrSubmissionInFlight = errors.New("submission in flight")
	ErrSessionOver        = errors.New("session is over")
	ErrNoAudio            = errors.New("no recording for this question")

	// ErrDevicePermissionDenied blocks speaking tasks until access is retried.
	ErrDevicePermissionDenied = errors.New("microphone permission denied")
	ErrDeviceUnavailable      = errors.New("microphone not ready")
)
