// Package speech defines the contracts for the three external speech
// capabilities the engine consumes: transcription, command
// interpretation, and synthesis. Implementations talk to remote
// services; the dialog engine only sees these interfaces.
package speech

import (
	"strings"

	"github.com/lflachs/cocorico-voice/pkg/inventory"
)

// Action is the operation a spoken command asks for.
type Action string

const (
	// ActionAdd increases stock, creating the product if needed.
	ActionAdd Action = "add"

	// ActionRemove decreases stock.
	ActionRemove Action = "remove"

	// ActionCheck reports the current quantity of one product.
	ActionCheck Action = "check"

	// ActionList enumerates the inventory.
	ActionList Action = "list"

	// ActionUnknown marks an utterance the interpreter could not map.
	ActionUnknown Action = "unknown"
)

// ParseAction maps a service-provided action string to an Action.
// Unrecognized values become ActionUnknown.
func ParseAction(s string) Action {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionAdd:
		return ActionAdd
	case ActionRemove:
		return ActionRemove
	case ActionCheck:
		return ActionCheck
	case ActionList:
		return ActionList
	default:
		return ActionUnknown
	}
}

// String returns the action name.
func (a Action) String() string { return string(a) }

// MutatesInventory reports whether executing the action writes to the
// product repository.
func (a Action) MutatesInventory() bool {
	return a == ActionAdd || a == ActionRemove
}

// LowConfidence is the interpretation confidence below which the command
// is flagged to the user before confirmation. It is never auto-rejected.
const LowConfidence = 0.7

// ProductReference is one product mentioned in an utterance, plus the
// resolution the disambiguator fills in.
type ProductReference struct {
	// SpokenName is the product name as heard.
	SpokenName string `json:"spoken_name"`

	// Quantity and Unit come from the utterance ("3", "kg").
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`

	// UnitPrice is a price stated inline, if any.
	UnitPrice *float64 `json:"unit_price,omitempty"`

	// MatchedID and MatchedName identify the resolved inventory entry.
	// Both empty means the reference resolves to a new product.
	MatchedID   string `json:"matched_id,omitempty"`
	MatchedName string `json:"matched_name,omitempty"`

	// Candidates holds the inventory entries resembling SpokenName.
	// Cardinality drives the disambiguation branch.
	Candidates []inventory.Product `json:"candidates,omitempty"`

	// CurrentQuantity is the matched product's stock before the command
	// runs, for narration.
	CurrentQuantity *float64 `json:"current_quantity,omitempty"`
}

// NeedsCreation reports whether the reference has no resolved match and
// should become a new product.
func (r *ProductReference) NeedsCreation() bool {
	return r.MatchedID == ""
}

// ParsedCommand is the interpreter's reading of one utterance. It is
// immutable per utterance; every command carries an Items list, there is
// no single-item special case.
type ParsedCommand struct {
	// Action is what the user asked for.
	Action Action `json:"action"`

	// Items are the referenced products, length >= 1 for known actions.
	Items []ProductReference `json:"items"`

	// Confidence is the interpreter's self-assessment in [0, 1].
	Confidence float64 `json:"confidence"`

	// NeedsConfirmation marks commands that must be read back before
	// execution.
	NeedsConfirmation bool `json:"needs_confirmation"`

	// ConfirmationPrompt is the sentence to read back.
	ConfirmationPrompt string `json:"confirmation_prompt"`
}

// LowConfidence reports whether the command should be flagged to the
// user as a possible mishearing.
func (c *ParsedCommand) LowConfidence() bool {
	return c.Confidence < LowConfidence
}
