// Package capture records finalized audio clips from an audio source using
// voice-activity detection.
//
// A Recorder owns the microphone for exactly the duration of one Record
// call: the device is acquired through the shared audioio.Guard on entry
// and released on every exit path, including cancellation mid-capture.
package capture

import (
	"fmt"
	"time"
)

// VADConfig tunes voice-activity detection for one recording turn.
type VADConfig struct {
	// SilenceThreshold is the normalized RMS energy (0.0-1.0) below which
	// a chunk counts as silence.
	SilenceThreshold float64

	// SilenceDuration is how long energy must stay below the threshold,
	// after voice was detected, before recording stops.
	SilenceDuration time.Duration

	// MinRecordingTime is the minimum time recorded before the silence
	// countdown may stop the recording.
	MinRecordingTime time.Duration

	// MaxRecordingTime is the hard ceiling: recording force-stops at this
	// point regardless of voice activity, guaranteeing forward progress
	// even with a stuck-open microphone or continuous background noise.
	MaxRecordingTime time.Duration
}

// CommandVAD returns the preset for a primary command capture: generous
// silence tolerance so users can pause mid-sentence.
func CommandVAD() VADConfig {
	return VADConfig{
		SilenceThreshold: 0.02,
		SilenceDuration:  2 * time.Second,
		MinRecordingTime: 500 * time.Millisecond,
		MaxRecordingTime: 15 * time.Second,
	}
}

// ConfirmVAD returns the preset for a short yes/no confirmation capture.
func ConfirmVAD() VADConfig {
	return VADConfig{
		SilenceThreshold: 0.02,
		SilenceDuration:  1200 * time.Millisecond,
		MinRecordingTime: 300 * time.Millisecond,
		MaxRecordingTime: 6 * time.Second,
	}
}

// PriceVAD returns the preset for a price-answer capture: users tend to
// think before naming a number, so silence tolerance is the longest.
func PriceVAD() VADConfig {
	return VADConfig{
		SilenceThreshold: 0.02,
		SilenceDuration:  2500 * time.Millisecond,
		MinRecordingTime: 300 * time.Millisecond,
		MaxRecordingTime: 10 * time.Second,
	}
}

// Validate checks the configuration for consistency.
func (c VADConfig) Validate() error {
	if c.SilenceThreshold <= 0 || c.SilenceThreshold >= 1 {
		return fmt.Errorf("silence threshold must be in (0,1), got %f", c.SilenceThreshold)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", c.SilenceDuration)
	}
	if c.MaxRecordingTime <= 0 {
		return fmt.Errorf("max recording time must be positive, got %v", c.MaxRecordingTime)
	}
	if c.MinRecordingTime < 0 {
		return fmt.Errorf("min recording time must not be negative, got %v", c.MinRecordingTime)
	}
	if c.MinRecordingTime >= c.MaxRecordingTime {
		return fmt.Errorf("min recording time %v must be below max %v", c.MinRecordingTime, c.MaxRecordingTime)
	}
	return nil
}
