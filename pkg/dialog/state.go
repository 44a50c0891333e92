// Package dialog drives the voice conversation: it sequences capture,
// transcription, interpretation, disambiguation, confirmation and
// execution for one session at a time, with cooperative cancellation at
// every suspension point.
package dialog

// State is the conversation state. Exactly one value is active per
// session; transitions are linear except Confirming and AwaitingPrice,
// which may loop on unclear replies, and any state can be forced back to
// Idle by cancellation.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateInterpreting
	StateConfirming
	StateExecuting
	StateSpeaking
	StateAwaitingPrice
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateRecording:     "recording",
	StateTranscribing:  "transcribing",
	StateInterpreting:  "interpreting",
	StateConfirming:    "confirming",
	StateExecuting:     "executing",
	StateSpeaking:      "speaking",
	StateAwaitingPrice: "awaiting_price",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
