// Package app wires the voice engine together: inventory store, speech
// services, audio devices, wake word listener, dialog engine and the
// monitoring dashboard.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lflachs/cocorico-voice/internal/log"
	"github.com/lflachs/cocorico-voice/pkg/audioio"
	"github.com/lflachs/cocorico-voice/pkg/capture"
	"github.com/lflachs/cocorico-voice/pkg/dialog"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
	"github.com/lflachs/cocorico-voice/pkg/speech"
	"github.com/lflachs/cocorico-voice/pkg/wakeword"
	"github.com/lflachs/cocorico-voice/pkg/web"
)

// Config holds everything the app needs to start.
type Config struct {
	Lang  string
	Voice string

	WakePhrase  string
	WakeEnabled bool

	GeminiKey     string
	SpeechKey     string
	TranscribeURL string
	SpeakURL      string

	AudioBackend  audioio.Backend
	SignallingURL string

	InventoryPath string
	DashboardAddr string
	Debug         bool
}

// App owns the wired components for one process.
type App struct {
	cfg    Config
	logger *slog.Logger

	repo      *inventory.JSONStore
	interp    *speech.GeminiInterpreter
	source    audioio.Source
	sink      audioio.Sink
	guard     *audioio.Guard
	engine    *dialog.Engine
	listener  *wakeword.Listener
	dashboard *web.Server
}

// New validates the config. Call Init before Run.
func New(cfg Config) (*App, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("app: GEMINI_API_KEY is required")
	}
	if cfg.TranscribeURL == "" || cfg.SpeakURL == "" {
		return nil, fmt.Errorf("app: speech service endpoints are required")
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	return &App{cfg: cfg, logger: log.Component("app")}, nil
}

// Init constructs every component. Nothing talks to the network yet
// except the Gemini client handshake.
func (a *App) Init(ctx context.Context) error {
	repo, err := inventory.NewJSONStore(a.cfg.InventoryPath)
	if err != nil {
		return fmt.Errorf("app: open inventory: %w", err)
	}
	a.repo = repo

	transcriber, err := speech.NewWSTranscriber(
		speech.WithAPIKey(a.cfg.SpeechKey),
		speech.WithTranscribeURL(a.cfg.TranscribeURL),
		speech.WithLanguage(a.cfg.Lang),
	)
	if err != nil {
		return fmt.Errorf("app: transcriber: %w", err)
	}

	interp, err := speech.NewGeminiInterpreter(ctx,
		speech.WithAPIKey(a.cfg.GeminiKey),
		speech.WithLanguage(a.cfg.Lang),
	)
	if err != nil {
		return fmt.Errorf("app: interpreter: %w", err)
	}
	a.interp = interp

	synth, err := speech.NewHTTPSynthesizer(
		speech.WithAPIKey(a.cfg.SpeechKey),
		speech.WithSpeakURL(a.cfg.SpeakURL),
		speech.WithVoice(a.cfg.Voice),
	)
	if err != nil {
		return fmt.Errorf("app: synthesizer: %w", err)
	}

	svc := speech.Service{
		Transcriber: transcriber,
		Interpreter: interp,
		Synthesizer: synth,
	}

	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = a.cfg.AudioBackend
	audioCfg.SignallingURL = a.cfg.SignallingURL

	source, err := audioio.NewSource(audioCfg, log.L())
	if err != nil {
		return fmt.Errorf("app: audio source: %w", err)
	}
	a.source = source

	sink, err := audioio.NewSink(audioCfg, log.L())
	if err != nil {
		return fmt.Errorf("app: audio sink: %w", err)
	}
	a.sink = sink

	a.guard = audioio.NewGuard()
	recorder := capture.NewRecorder(source, a.guard, log.L())

	a.dashboard = web.NewServer(a.cfg.DashboardAddr, repo, log.L())

	engineCfg := dialog.DefaultConfig()
	engineCfg.Lang = a.cfg.Lang
	engineCfg.Voice = a.cfg.Voice
	engineCfg.Logger = log.L()
	engineCfg.OnState = a.dashboard.OnState
	engineCfg.OnTranscript = a.dashboard.OnTranscript
	a.engine = dialog.NewEngine(repo, svc, recorder, sink, engineCfg)

	if a.cfg.WakeEnabled {
		listener, err := wakeword.NewListener(source, transcriber, a.guard, wakeword.Config{
			Phrase: a.cfg.WakePhrase,
			Lang:   a.cfg.Lang,
			Logger: log.L(),
		})
		if err != nil {
			return fmt.Errorf("app: wake word: %w", err)
		}
		a.listener = listener
	}

	return nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.sink.Start(ctx); err != nil {
		return fmt.Errorf("app: start playback: %w", err)
	}
	defer a.sink.Stop()

	go func() {
		if err := a.dashboard.Start(ctx); err != nil {
			a.logger.Error("dashboard stopped", "error", err)
		}
	}()

	wakes := make(chan struct{}, 1)
	if a.listener != nil {
		a.listener.OnWake = func() {
			select {
			case wakes <- struct{}{}:
			default:
			}
		}
		a.dashboard.UpdateState(func(s *web.EngineState) { s.WakeListening = true })

		go func() {
			err := a.listener.Run(ctx)
			a.dashboard.UpdateState(func(s *web.EngineState) {
				s.WakeListening = false
				s.WakeDisabled = a.listener.Disabled()
			})
			if errors.Is(err, wakeword.ErrDisabled) {
				a.logger.Error("wake word disabled, no further sessions can start")
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wakes:
			a.runSession(ctx)
		}
	}
}

// runSession pauses the wake listener, runs one conversation, and
// resumes listening. The microphone changes hands exactly once each way.
func (a *App) runSession(ctx context.Context) {
	a.listener.Pause()
	defer func() {
		if !a.listener.Disabled() {
			a.listener.Resume()
		}
	}()

	sess := a.engine.NewSession()
	a.dashboard.UpdateState(func(s *web.EngineState) {
		s.Wakes = a.listener.Wakes()
	})

	start := time.Now()
	err := a.engine.RunCommand(ctx, sess)
	switch {
	case err == nil:
		a.logger.Info("session finished", "session", sess.ID, "took", time.Since(start))
	case errors.Is(err, dialog.ErrCancelled):
		a.logger.Info("session cancelled", "session", sess.ID)
	default:
		a.logger.Error("session failed", "session", sess.ID, "error", err)
	}
}

// Shutdown releases long-lived resources.
func (a *App) Shutdown() {
	if a.dashboard != nil {
		if err := a.dashboard.Shutdown(); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.interp != nil {
		a.interp.Close()
	}
	if a.source != nil {
		a.source.Close()
	}
	if a.sink != nil {
		a.sink.Close()
	}
}
