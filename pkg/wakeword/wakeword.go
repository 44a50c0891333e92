// Package wakeword runs the continuous trigger-phrase listener. The
// listener and an active recording session are mutually exclusive: the
// engine pauses the listener, which fully stops capture and releases the
// microphone, before a session may start.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lflachs/cocorico-voice/pkg/audioio"
	"github.com/lflachs/cocorico-voice/pkg/capture"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
	"github.com/lflachs/cocorico-voice/pkg/speech"
)

// ErrDisabled is returned by Run when the device was denied and the
// listener shut itself down for the rest of the process.
var ErrDisabled = errors.New("wakeword: listener disabled")

const (
	// DefaultWindow is the length of one listening window.
	DefaultWindow = 2 * time.Second

	// retryDelay is how long to wait when the device is briefly busy.
	retryDelay = 200 * time.Millisecond
)

// Config tunes the listener.
type Config struct {
	// Phrase is the trigger phrase, matched after case/diacritic folding.
	Phrase string

	// Lang is the transcription language hint.
	Lang string

	// Window is the rolling capture window length.
	Window time.Duration

	Logger *slog.Logger
}

// Listener captures short rolling windows, transcribes them, and fires
// OnWake when the trigger phrase is heard.
type Listener struct {
	source      audioio.Source
	transcriber speech.Transcriber
	guard       *audioio.Guard
	cfg         Config
	logger      *slog.Logger

	// OnWake is called once per detection. Set before Run.
	OnWake func()

	mu           sync.Mutex
	cond         *sync.Cond
	paused       bool
	capturing    bool
	windowCancel context.CancelFunc

	disabled atomic.Bool
	wakes    atomic.Int64
}

// NewListener creates a listener. The guard must be the same one the
// recording session uses, so the microphone can never be open twice.
func NewListener(source audioio.Source, transcriber speech.Transcriber, guard *audioio.Guard, cfg Config) (*Listener, error) {
	if strings.TrimSpace(cfg.Phrase) == "" {
		return nil, fmt.Errorf("wakeword: trigger phrase required")
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	l := &Listener{
		source:      source,
		transcriber: transcriber,
		guard:       guard,
		cfg:         cfg,
		logger:      cfg.Logger.With("component", "wakeword"),
	}
	l.cond = sync.NewCond(&l.mu)
	return l, nil
}

// Run listens until ctx is cancelled. A device permission failure
// disables the listener permanently and returns ErrDisabled; it is never
// retried within the process.
func (l *Listener) Run(ctx context.Context) error {
	if l.disabled.Load() {
		return ErrDisabled
	}

	// Wake waiters when the caller shuts down.
	stop := context.AfterFunc(ctx, l.cond.Broadcast)
	defer stop()

	l.logger.Info("listening for trigger phrase", "phrase", l.cfg.Phrase)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.waitWhilePaused(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		text, err := l.captureAndTranscribe(ctx)
		switch {
		case err == nil:
		case errors.Is(err, audioio.ErrDeviceBusy):
			// A session holds the microphone; back off quietly.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue // window cancelled by Pause
		case errors.Is(err, capture.ErrDeviceUnavailable):
			l.disabled.Store(true)
			l.logger.Error("microphone denied, wake word disabled for this run", "error", err)
			return ErrDisabled
		default:
			// A failing transcription service must not be hammered with
			// back-to-back windows.
			l.logger.Warn("window transcription failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		if l.matches(text) && !l.Paused() {
			l.wakes.Add(1)
			l.logger.Info("trigger phrase detected", "text", text)
			if l.OnWake != nil {
				l.OnWake()
			}
		}
	}
}

// captureAndTranscribe records one window and transcribes it. The device
// is released before the network call, so a session can start while the
// transcription is still in flight.
func (l *Listener) captureAndTranscribe(ctx context.Context) (string, error) {
	clip, err := l.captureWindow(ctx)
	if err != nil {
		return "", err
	}
	if clip.Empty() {
		return "", nil
	}

	text, err := l.transcriber.Transcribe(ctx, clip, l.cfg.Lang)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (l *Listener) captureWindow(ctx context.Context) (*capture.Clip, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.paused {
		l.mu.Unlock()
		return nil, context.Canceled
	}
	l.capturing = true
	l.windowCancel = cancel
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.capturing = false
		l.windowCancel = nil
		l.cond.Broadcast()
		l.mu.Unlock()
	}()

	lease, err := l.guard.Acquire("wakeword")
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if err := l.source.Start(wctx); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	defer l.source.Stop()

	var (
		pcm      []byte
		recorded time.Duration
		voiced   bool
	)
	for recorded < l.cfg.Window {
		chunk, err := l.source.Read(wctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		pcm = append(pcm, chunk.Bytes()...)
		recorded += time.Duration(chunk.Duration() * float64(time.Second))
		if chunk.RMS() >= 0.02 {
			voiced = true
		}
	}

	srcCfg := l.source.Config()
	if !voiced {
		return capture.NewClip(nil, srcCfg.SampleRate), nil
	}
	return capture.NewClip(pcm, srcCfg.SampleRate), nil
}

// Pause fully stops capture and blocks until the microphone is
// released. It must be called before a recording session starts.
func (l *Listener) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paused = true
	if l.windowCancel != nil {
		l.windowCancel()
	}
	for l.capturing {
		l.cond.Wait()
	}
}

// Resume restarts listening after the session surface closed.
func (l *Listener) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paused = false
	l.cond.Broadcast()
}

// Paused reports whether the listener is paused.
func (l *Listener) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Disabled reports whether a device denial shut the listener down.
func (l *Listener) Disabled() bool {
	return l.disabled.Load()
}

// Wakes returns how many times the trigger phrase fired.
func (l *Listener) Wakes() int64 {
	return l.wakes.Load()
}

func (l *Listener) matches(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return strings.Contains(inventory.Normalize(text), inventory.Normalize(l.cfg.Phrase))
}

func (l *Listener) waitWhilePaused(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.paused && ctx.Err() == nil {
		l.cond.Wait()
	}
}
