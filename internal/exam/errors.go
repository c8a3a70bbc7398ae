package exam

import "errors"

var (
	// ErrNoQuestions is returned when a session is built from an empty pool.
	ErrNoQuestions = errors.New("exam: no questions to sample from")
	// ErrSessionSubmitted is returned by every mutation once the session is terminal.
	ErrSessionSubmitted = errors.New("exam: session already submitted")
	// ErrSessionNotRunning is returned by mutations before Start.
	ErrSessionNotRunning = errors.New("exam: session not running")
	// ErrSessionAlreadyStarted is returned by a second Start.
	ErrSessionAlreadyStarted = errors.New("exam: session already started")
	ErrIndexOutOfRange       = errors.New("exam: question index out of range")
	ErrOptionOutOfRange      = errors.New("exam: option index out of range")
)

// IsInvalidTransition reports whether err is a rejected state transition
// (as opposed to a bad index).
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrSessionSubmitted) ||
		errors.Is(err, ErrSessionNotRunning) ||
		errors.Is(err, ErrSessionAlreadyStarted)
}
