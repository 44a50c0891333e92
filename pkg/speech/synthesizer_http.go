package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/lflachs/cocorico-voice/internal/httpc"
	"github.com/lflachs/cocorico-voice/pkg/capture"
)

// HTTPSynthesizer renders speech through a simple JSON-in, PCM-out POST
// endpoint.
type HTTPSynthesizer struct {
	config *Config
	logger *slog.Logger
}

// NewHTTPSynthesizer creates an HTTP synthesizer.
func NewHTTPSynthesizer(opts ...Option) (*HTTPSynthesizer, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SpeakURL == "" {
		return nil, ErrNoEndpoint
	}

	return &HTTPSynthesizer{
		config: cfg,
		logger: cfg.Logger.With("component", "speech.synthesizer"),
	}, nil
}

type speakRequest struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

// Speak implements Synthesizer.
func (s *HTTPSynthesizer) Speak(ctx context.Context, text, lang, voice string) (*capture.Clip, error) {
	if lang == "" {
		lang = s.config.Language
	}
	if voice == "" {
		voice = s.config.Voice
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	body, err := json.Marshal(speakRequest{
		Text:       text,
		Language:   lang,
		Voice:      voice,
		SampleRate: s.config.SampleRate,
		Encoding:   "pcm_s16le",
	})
	if err != nil {
		return nil, WrapError("tts", err)
	}

	resp, err := httpc.Post(ctx, s.config.SpeakURL+"?key="+s.config.APIKey, "application/json", body)
	if err != nil {
		return nil, WrapError("tts", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, WrapError("tts", &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			Provider:   "tts",
		})
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError("tts", fmt.Errorf("read audio: %w", err))
	}

	s.logger.Debug("speech synthesized", "chars", len(text), "bytes", len(pcm))
	return capture.NewClip(pcm, s.config.SampleRate), nil
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)
