// Cocorico Voice - hands-free inventory assistant for restaurant
// kitchens. Listens for a wake phrase, runs one spoken command through
// transcription, interpretation and confirmation, updates the inventory
// and speaks the result back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lflachs/cocorico-voice/internal/config"
	"github.com/lflachs/cocorico-voice/internal/log"
	"github.com/lflachs/cocorico-voice/pkg/app"
	"github.com/lflachs/cocorico-voice/pkg/audioio"
)

func main() {
	cfg := parseFlags()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags builds the app config from flags and the environment.
// Flags win over environment variables.
func parseFlags() app.Config {
	config.LoadDotEnv()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	lang := flag.String("lang", config.Language(), "Conversation language (en, fr)")
	voice := flag.String("voice", config.Env("VOICE_NAME", ""), "Synthesis voice")
	wake := flag.Bool("wake", true, "Enable the wake word listener")
	wakePhrase := flag.String("wake-phrase", config.WakePhrase(), "Trigger phrase")
	backend := flag.String("audio", config.Env("AUDIO_BACKEND", "auto"), "Audio backend: auto, remote, mock")
	port := flag.Int("port", config.EnvInt("DASHBOARD_PORT", config.DefaultDashboardPort), "Dashboard port")
	inventoryPath := flag.String("inventory", config.InventoryPath(), "Inventory store path")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level)

	return app.Config{
		Lang:          *lang,
		Voice:         *voice,
		WakePhrase:    *wakePhrase,
		WakeEnabled:   *wake,
		GeminiKey:     config.GeminiAPIKey(),
		SpeechKey:     config.SpeechAPIKey(),
		TranscribeURL: config.Env("SPEECH_TRANSCRIBE_URL", ""),
		SpeakURL:      config.Env("SPEECH_SPEAK_URL", ""),
		AudioBackend:  audioio.Backend(*backend),
		SignallingURL: config.Env("AUDIO_SIGNALLING_URL", ""),
		InventoryPath: *inventoryPath,
		DashboardAddr: fmt.Sprintf(":%d", *port),
		Debug:         *debug,
	}
}
