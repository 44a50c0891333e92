package capture

import (
	"time"

	"github.com/google/uuid"
)

// MinClipBytes is the smallest clip considered meaningful input.
// Anything shorter is silence or noise: ~125ms of PCM16 at 16kHz.
const MinClipBytes = 4000

// Clip is a finalized audio recording.
type Clip struct {
	// ID uniquely identifies the clip across logs and service calls.
	ID string

	// PCM is raw little-endian PCM16 mono audio.
	PCM []byte

	// SampleRate is the clip's sample rate in Hz.
	SampleRate int

	// Duration is the recorded audio duration.
	Duration time.Duration
}

// NewClip builds a clip from raw PCM16 audio.
func NewClip(pcm []byte, sampleRate int) *Clip {
	var dur time.Duration
	if sampleRate > 0 {
		dur = time.Duration(float64(len(pcm)/2) / float64(sampleRate) * float64(time.Second))
	}
	return &Clip{
		ID:         uuid.NewString(),
		PCM:        pcm,
		SampleRate: sampleRate,
		Duration:   dur,
	}
}

// Empty reports whether the clip carries no meaningful input. Callers must
// treat an empty clip as "no answer" and re-prompt or take a default
// branch, never as an error.
func (c *Clip) Empty() bool {
	return c == nil || len(c.PCM) < MinClipBytes
}
