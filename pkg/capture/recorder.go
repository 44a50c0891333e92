package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lflachs/cocorico-voice/pkg/audioio"
)

// ErrDeviceUnavailable is returned when the audio source cannot be opened.
// This is terminal for the session; the dialog engine reports it and
// returns to idle.
var ErrDeviceUnavailable = errors.New("capture: device unavailable")

// Recorder records one clip at a time from an audio source, applying
// voice-activity detection to decide when the speaker has finished.
type Recorder struct {
	source audioio.Source
	guard  *audioio.Guard
	logger *slog.Logger
}

// NewRecorder creates a recorder over the given source. The guard enforces
// exclusive device ownership against the wake-word listener.
func NewRecorder(source audioio.Source, guard *audioio.Guard, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		source: source,
		guard:  guard,
		logger: logger,
	}
}

// Record captures audio until the VAD stops it and returns the finalized
// clip. The returned clip is Empty when no voice was detected; callers
// treat that as "no input", not an error.
//
// The device is released on every exit path: normal stop, hard ceiling,
// source error, and cancellation.
func (r *Recorder) Record(ctx context.Context, vad VADConfig) (*Clip, error) {
	if err := vad.Validate(); err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	lease, err := r.guard.Acquire("recorder")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if err := r.source.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer r.source.Stop()

	var (
		pcm           []byte
		recorded      time.Duration
		silentFor     time.Duration
		voiceDetected bool
		sampleRate    = r.source.Config().SampleRate
	)

	for {
		chunk, err := r.source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break // source stopped underneath us, finalize what we have
			}
			// Cancellation or device failure mid-capture.
			return nil, err
		}

		pcm = append(pcm, chunk.Bytes()...)
		chunkDur := time.Duration(chunk.Duration() * float64(time.Second))
		recorded += chunkDur

		energy := chunk.RMS()
		if energy >= vad.SilenceThreshold {
			if !voiceDetected {
				voiceDetected = true
				r.logger.Debug("voice detected", "at", recorded)
			}
			silentFor = 0
		} else if voiceDetected && recorded >= vad.MinRecordingTime {
			silentFor += chunkDur
			if silentFor >= vad.SilenceDuration {
				r.logger.Debug("silence countdown elapsed", "recorded", recorded)
				break
			}
		}

		if recorded >= vad.MaxRecordingTime {
			r.logger.Debug("hard ceiling reached", "recorded", recorded)
			break
		}
	}

	if !voiceDetected {
		r.logger.Debug("no voice detected", "recorded", recorded)
		return NewClip(nil, sampleRate), nil
	}

	clip := NewClip(pcm, sampleRate)
	r.logger.Debug("clip finalized",
		"clip_id", clip.ID,
		"duration", clip.Duration,
		"bytes", len(clip.PCM),
	)
	return clip, nil
}
