package speech

import (
	"context"
	"sync"

	"github.com/lflachs/cocorico-voice/pkg/capture"
)

// Mock implements Transcriber, Interpreter and Synthesizer for tests.
// Transcripts and Commands are consumed front to back; an exhausted
// script yields "no text" and ErrBadInterpretation respectively, which
// is what a quiet room produces.
type Mock struct {
	mu sync.Mutex

	// Configurable behavior; overrides the scripted queues when set.
	TranscribeFunc func(ctx context.Context, clip *capture.Clip, lang string) (string, error)
	InterpretFunc  func(ctx context.Context, text, lang string) (*ParsedCommand, error)
	SpeakFunc      func(ctx context.Context, text, lang, voice string) (*capture.Clip, error)

	// Scripted results, consumed in order.
	Transcripts []string
	Commands    []*ParsedCommand

	// Errors maps a method name ("Transcribe", "Interpret", "Speak") to
	// an error that method should return.
	Errors map[string]error

	// Captured calls for assertions
	Calls  []string
	Heard  []string // texts passed to Interpret
	Spoken []string // texts passed to Speak
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{Errors: make(map[string]error)}
}

// Transcribe implements Transcriber.
func (m *Mock) Transcribe(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, clip, lang)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "Transcribe")
	if err := m.Errors["Transcribe"]; err != nil {
		return "", err
	}
	if len(m.Transcripts) == 0 {
		return "", nil
	}
	text := m.Transcripts[0]
	m.Transcripts = m.Transcripts[1:]
	return text, nil
}

// Interpret implements Interpreter.
func (m *Mock) Interpret(ctx context.Context, text, lang string) (*ParsedCommand, error) {
	if m.InterpretFunc != nil {
		return m.InterpretFunc(ctx, text, lang)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "Interpret")
	m.Heard = append(m.Heard, text)
	if err := m.Errors["Interpret"]; err != nil {
		return nil, err
	}
	if len(m.Commands) == 0 {
		return nil, ErrBadInterpretation
	}
	cmd := m.Commands[0]
	m.Commands = m.Commands[1:]
	return cmd, nil
}

// Speak implements Synthesizer. The returned clip is large enough to
// not read as Empty.
func (m *Mock) Speak(ctx context.Context, text, lang, voice string) (*capture.Clip, error) {
	if m.SpeakFunc != nil {
		return m.SpeakFunc(ctx, text, lang, voice)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "Speak")
	if err := m.Errors["Speak"]; err != nil {
		return nil, err
	}
	m.Spoken = append(m.Spoken, text)
	return capture.NewClip(make([]byte, 8000), 16000), nil
}

// CallCount returns how many times method was invoked.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// Reset clears scripts and captured data.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transcripts = nil
	m.Commands = nil
	m.Errors = make(map[string]error)
	m.Calls = nil
	m.Heard = nil
	m.Spoken = nil
}

// Ensure Mock implements all three contracts.
var (
	_ Transcriber = (*Mock)(nil)
	_ Interpreter = (*Mock)(nil)
	_ Synthesizer = (*Mock)(nil)
)
