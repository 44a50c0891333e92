package dialog

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/lflachs/cocorico-voice/pkg/speech"
)

// Session is the state of one conversation. All dialog state lives here,
// never in package globals, so concurrent tests and back-to-back
// sessions cannot interfere.
type Session struct {
	// ID identifies the session in logs and hooks.
	ID string

	// Lang is the conversation language ("en", "fr").
	Lang string

	// Command is the interpreted utterance, set after Interpreting.
	Command *speech.ParsedCommand

	// Queue holds items awaiting their price question.
	Queue *PendingQueue

	state     atomic.Int32
	cancelled atomic.Bool

	// Manual confirm/cancel override, consumed once by the next
	// confirmation turn.
	overrideMu sync.Mutex
	override   *bool
}

// NewSession creates an idle session.
func NewSession(lang string) *Session {
	return &Session{
		ID:    uuid.NewString(),
		Lang:  lang,
		Queue: NewPendingQueue(),
	}
}

// State returns the current conversation state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Cancel signals that the user closed the interaction surface. Every
// continuation point checks this flag; once set, no further inventory
// mutation or speech happens and resources are torn down.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether the session was cancelled.
func (s *Session) Cancelled() bool {
	return s.cancelled.Load()
}

// Confirm records a manual confirm (true) or cancel (false) answer. The
// next confirmation turn consumes it instead of recording a spoken
// reply. This is the escape hatch for a UI button press.
func (s *Session) Confirm(accept bool) {
	s.overrideMu.Lock()
	defer s.overrideMu.Unlock()
	v := accept
	s.override = &v
}

// takeOverride consumes a pending manual answer, if any.
func (s *Session) takeOverride() (bool, bool) {
	s.overrideMu.Lock()
	defer s.overrideMu.Unlock()
	if s.override == nil {
		return false, false
	}
	v := *s.override
	s.override = nil
	return v, true
}
