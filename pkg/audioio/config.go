// Package audioio provides audio capture and playback for the voice engine.
//
// This package supports multiple backends:
//   - Remote - a streaming microphone received over WebRTC (Opus/RTP)
//   - Mock - CI/Testing without hardware
//
// The microphone is an exclusively-owned resource: at most one component
// (the wake-word listener or an active recording session) may hold it open
// at a time. The Guard type enforces that discipline.
package audioio

import (
	"fmt"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendRemote receives audio from a remote microphone over WebRTC.
	BackendRemote Backend = "remote"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (remote when a signalling URL is set, mock otherwise)
	Backend Backend `json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (what the speech services expect)
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms (320 samples at 16kHz)
	BufferDuration time.Duration `json:"buffer_duration"`

	// SignallingURL is the WebSocket signalling endpoint for the remote
	// microphone backend. Ignored by the mock backend.
	SignallingURL string `json:"signalling_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	if c.Backend == BackendRemote && c.SignallingURL == "" {
		return fmt.Errorf("remote backend requires signalling_url")
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (int16 samples).
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}
