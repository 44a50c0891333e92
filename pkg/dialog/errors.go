package dialog

import "errors"

// Sentinel errors for session control flow.
var (
	// ErrSessionActive is returned when a command is started while
	// another recording session is still running.
	ErrSessionActive = errors.New("dialog: session already active")

	// ErrCancelled is returned when the session was cancelled by the
	// user; the pipeline stopped without further side effects.
	ErrCancelled = errors.New("dialog: session cancelled")
)

// Internal control-flow errors, never returned to callers.
var (
	// errAborted means the user declined and the command is dropped.
	errAborted = errors.New("dialog: command aborted by user")

	// errUnclear means the retry budget for an unclear reply ran out.
	errUnclear = errors.New("dialog: no clear reply")
)
