// Package config provides environment configuration for cocorico-voice
// commands. Values come from the process environment, optionally seeded
// from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the voice engine.
const (
	DefaultLanguage      = "en"
	DefaultWakePhrase    = "hey coco"
	DefaultDashboardPort = 8181
)

// LoadDotEnv loads a .env file if one exists in the working directory.
// Missing files are not an error; real environment variables win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Env returns the value of the named variable, or def if unset.
func Env(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// EnvInt returns the named variable parsed as an int, or def.
func EnvInt(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// EnvDuration returns the named variable parsed as a duration, or def.
func EnvDuration(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// EnvBool returns the named variable parsed as a bool, or def.
func EnvBool(name string, def bool) bool {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// EnvRequired returns the named variable or exits with a usage hint.
func EnvRequired(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", name)
		os.Exit(1)
	}
	return v
}

// GeminiAPIKey returns the Gemini API key from GEMINI_API_KEY.
func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// SpeechAPIKey returns the speech service key from SPEECH_API_KEY.
func SpeechAPIKey() string {
	return os.Getenv("SPEECH_API_KEY")
}

// Language returns the conversation language from VOICE_LANG or default.
func Language() string {
	return Env("VOICE_LANG", DefaultLanguage)
}

// WakePhrase returns the wake trigger phrase from WAKE_PHRASE or default.
func WakePhrase() string {
	return Env("WAKE_PHRASE", DefaultWakePhrase)
}

// InventoryPath returns the inventory store path from INVENTORY_PATH.
// Falls back to ~/.cocorico/inventory.json.
func InventoryPath() string {
	if p := os.Getenv("INVENTORY_PATH"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	return home + "/.cocorico/inventory.json"
}
