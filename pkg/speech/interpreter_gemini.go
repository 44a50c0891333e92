package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const interpretPromptTemplate = `You convert a restaurant worker's spoken inventory command into JSON.
The utterance language is %q.

Utterance: %q

Respond with ONLY this JSON shape, no prose:
{
  "action": "add" | "remove" | "check" | "list" | "unknown",
  "items": [
    {"spoken_name": string, "quantity": number, "unit": string, "unit_price": number or null}
  ],
  "confidence": number between 0 and 1,
  "confirmation_prompt": string restating the command as a question in the utterance language
}

Rules:
- quantity defaults to 1 when the utterance gives none.
- unit is a short unit word ("kg", "l", "piece") or "" when none is spoken.
- unit_price is null unless a per-unit price is explicitly spoken.
- "check" and "list" never carry a price.
- action "unknown" when the utterance is not an inventory command.`

// GeminiInterpreter maps utterances to commands with a Gemini model in
// JSON mode.
type GeminiInterpreter struct {
	config *Config
	logger *slog.Logger
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiInterpreter creates the interpreter and its API client.
func NewGeminiInterpreter(ctx context.Context, opts ...Option) (*GeminiInterpreter, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, WrapError("gemini", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"

	return &GeminiInterpreter{
		config: cfg,
		logger: cfg.Logger.With("component", "speech.interpreter"),
		client: client,
		model:  model,
	}, nil
}

// Interpret implements Interpreter.
func (g *GeminiInterpreter) Interpret(ctx context.Context, text, lang string) (*ParsedCommand, error) {
	if lang == "" {
		lang = g.config.Language
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	prompt := fmt.Sprintf(interpretPromptTemplate, lang, text)
	res, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, WrapError("gemini", err)
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil ||
		len(res.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError("gemini", fmt.Errorf("%w: empty response", ErrBadInterpretation))
	}

	part, ok := res.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, WrapError("gemini", fmt.Errorf("%w: non-text response", ErrBadInterpretation))
	}

	cmd, err := decodeCommand(string(part))
	if err != nil {
		g.logger.Warn("interpretation rejected", "error", err, "text", text)
		return nil, WrapError("gemini", err)
	}

	g.logger.Debug("utterance interpreted",
		"action", cmd.Action, "items", len(cmd.Items), "confidence", cmd.Confidence)
	return cmd, nil
}

// Close releases the API client.
func (g *GeminiInterpreter) Close() error {
	return g.client.Close()
}

// commandWire is the JSON shape the model is asked for.
type commandWire struct {
	Action string `json:"action"`
	Items  []struct {
		SpokenName string   `json:"spoken_name"`
		Quantity   float64  `json:"quantity"`
		Unit       string   `json:"unit"`
		UnitPrice  *float64 `json:"unit_price"`
	} `json:"items"`
	Confidence         float64 `json:"confidence"`
	ConfirmationPrompt string  `json:"confirmation_prompt"`
}

// decodeCommand validates and converts a model response. Code fences are
// stripped first because models wrap JSON in them despite instructions.
func decodeCommand(raw string) (*ParsedCommand, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var wire commandWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInterpretation, err)
	}

	action := ParseAction(wire.Action)
	if action != ActionUnknown && action != ActionList && len(wire.Items) == 0 {
		return nil, fmt.Errorf("%w: action %q with no items", ErrBadInterpretation, action)
	}

	cmd := &ParsedCommand{
		Action:             action,
		Confidence:         clamp01(wire.Confidence),
		NeedsConfirmation:  action.MutatesInventory(),
		ConfirmationPrompt: wire.ConfirmationPrompt,
	}
	for _, it := range wire.Items {
		if strings.TrimSpace(it.SpokenName) == "" {
			return nil, fmt.Errorf("%w: item with no name", ErrBadInterpretation)
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		cmd.Items = append(cmd.Items, ProductReference{
			SpokenName: strings.TrimSpace(it.SpokenName),
			Quantity:   qty,
			Unit:       strings.TrimSpace(it.Unit),
			UnitPrice:  it.UnitPrice,
		})
	}
	return cmd, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var _ Interpreter = (*GeminiInterpreter)(nil)
