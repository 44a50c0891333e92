package speech

import (
	"log/slog"
	"time"
)

// Config holds speech service configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Service credentials and endpoints
	APIKey        string
	TranscribeURL string
	SpeakURL      string

	// Model selects the interpretation model.
	Model string

	// Language is the default BCP-47 language hint ("en", "fr").
	Language string

	// Voice selects the synthesis voice.
	Voice string

	// SampleRate is the PCM rate of uploaded and returned audio.
	SampleRate int

	// Timeout bounds each service call.
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring speech services.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithTranscribeURL sets the speech-to-text endpoint.
func WithTranscribeURL(url string) Option {
	return func(c *Config) { c.TranscribeURL = url }
}

// WithSpeakURL sets the synthesis endpoint.
func WithSpeakURL(url string) Option {
	return func(c *Config) { c.SpeakURL = url }
}

// WithModel sets the interpretation model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the default language hint.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithVoice sets the synthesis voice.
func WithVoice(voice string) Option {
	return func(c *Config) { c.Voice = voice }
}

// WithSampleRate sets the PCM sample rate for audio transfer.
func WithSampleRate(rate int) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:      "gemini-1.5-flash",
		Language:   "en",
		SampleRate: 16000,
		Timeout:    30 * time.Second,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
