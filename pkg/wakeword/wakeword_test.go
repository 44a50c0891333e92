package wakeword

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lflachs/cocorico-voice/pkg/audioio"
	"github.com/lflachs/cocorico-voice/pkg/capture"
	"github.com/lflachs/cocorico-voice/pkg/speech"
)

func testConfig() audioio.Config {
	return audioio.Config{
		Backend:        audioio.BackendMock,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestListener(t *testing.T, source audioio.Source, transcripts []string) (*Listener, *audioio.Guard) {
	t.Helper()
	svc := speech.NewMock()
	svc.Transcripts = transcripts
	guard := audioio.NewGuard()

	l, err := NewListener(source, svc, guard, Config{
		Phrase: "hey coco",
		Lang:   "en",
		Window: 200 * time.Millisecond,
		Logger: discard(),
	})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	return l, guard
}

func TestListenerRequiresPhrase(t *testing.T) {
	if _, err := NewListener(nil, speech.NewMock(), audioio.NewGuard(), Config{}); err == nil {
		t.Fatal("expected an error for an empty phrase")
	}
}

func TestListenerFiresOnPhrase(t *testing.T) {
	source := audioio.NewMockSource(testConfig(), discard(),
		audioio.WithSineWave(440, 0.5))
	l, _ := newTestListener(t, source, []string{"hey coco what's up"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	woke := make(chan struct{}, 1)
	l.OnWake = func() {
		select {
		case woke <- struct{}{}:
		default:
		}
		cancel()
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-woke:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger phrase never fired")
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
	if l.Wakes() != 1 {
		t.Errorf("wakes = %d, want 1", l.Wakes())
	}
}

func TestListenerIgnoresOtherSpeech(t *testing.T) {
	source := audioio.NewMockSource(testConfig(), discard(),
		audioio.WithSineWave(440, 0.5))
	// Exhausting the script yields empty transcripts afterwards.
	l, _ := newTestListener(t, source, []string{"three kilos of flour"})

	l.OnWake = func() { t.Error("unexpected wake") }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run returned %v", err)
	}
	if l.Wakes() != 0 {
		t.Errorf("wakes = %d, want 0", l.Wakes())
	}
}

func TestPauseReleasesDevice(t *testing.T) {
	source := audioio.NewMockSource(testConfig(), discard(),
		audioio.WithSineWave(440, 0.5), audioio.WithRealtime())
	l, guard := newTestListener(t, source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	// Give the listener time to open a capture window.
	time.Sleep(50 * time.Millisecond)

	l.Pause()
	if n := guard.OpenHandles(); n != 0 {
		t.Fatalf("open handles after Pause = %d, want 0", n)
	}

	// The session can now take the microphone exclusively.
	lease, err := guard.Acquire("recorder")
	if err != nil {
		t.Fatalf("session could not acquire the device: %v", err)
	}
	lease.Release()

	l.Resume()
	if l.Paused() {
		t.Error("listener still paused after Resume")
	}

	cancel()
	<-done
}

func TestTranscriptionFailureBacksOff(t *testing.T) {
	source := audioio.NewMockSource(testConfig(), discard(),
		audioio.WithSineWave(440, 0.5))
	l, _ := newTestListener(t, source, nil)

	var calls atomic.Int32
	svc := speech.NewMock()
	svc.TranscribeFunc = func(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
		calls.Add(1)
		return "", errors.New("service unavailable")
	}
	l.transcriber = svc

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := l.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}

	// The unpaced source captures windows instantly, so without a delay
	// between failed windows the call count would be in the hundreds.
	if n := calls.Load(); n > 3 {
		t.Errorf("transcribe calls = %d, want a backoff between failures", n)
	}
}

func TestDeviceDenialDisablesPermanently(t *testing.T) {
	source := audioio.NewMockSource(testConfig(), discard())
	source.Close() // Start will now fail, as a denied microphone would.
	l, guard := newTestListener(t, source, nil)

	err := l.Run(context.Background())
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if !l.Disabled() {
		t.Error("listener must report Disabled")
	}
	if n := guard.OpenHandles(); n != 0 {
		t.Errorf("open handles = %d, want 0", n)
	}

	// No retry: a second Run refuses immediately.
	if err := l.Run(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("second Run returned %v, want ErrDisabled", err)
	}
}
