package speech

import (
	"context"

	"github.com/lflachs/cocorico-voice/pkg/capture"
)

// Transcriber converts a finalized audio clip to text. An empty string
// with a nil error means the service heard no words; the caller decides
// whether to re-prompt.
type Transcriber interface {
	Transcribe(ctx context.Context, clip *capture.Clip, lang string) (string, error)
}

// Interpreter maps free text to a structured command. A response that
// cannot be read as a command returns ErrBadInterpretation.
type Interpreter interface {
	Interpret(ctx context.Context, text, lang string) (*ParsedCommand, error)
}

// Synthesizer renders text as a spoken audio clip. Callers treat failure
// as non-fatal; the conversation continues without the narration.
type Synthesizer interface {
	Speak(ctx context.Context, text, lang, voice string) (*capture.Clip, error)
}

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, clip *capture.Clip, lang string) (string, error)

// Transcribe implements Transcriber.
func (f TranscriberFunc) Transcribe(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
	return f(ctx, clip, lang)
}

// InterpreterFunc adapts a function to the Interpreter interface.
type InterpreterFunc func(ctx context.Context, text, lang string) (*ParsedCommand, error)

// Interpret implements Interpreter.
func (f InterpreterFunc) Interpret(ctx context.Context, text, lang string) (*ParsedCommand, error) {
	return f(ctx, text, lang)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text, lang, voice string) (*capture.Clip, error)

// Speak implements Synthesizer.
func (f SynthesizerFunc) Speak(ctx context.Context, text, lang, voice string) (*capture.Clip, error) {
	return f(ctx, text, lang, voice)
}

// Service bundles the three capabilities for wiring convenience.
type Service struct {
	Transcriber Transcriber
	Interpreter Interpreter
	Synthesizer Synthesizer
}
