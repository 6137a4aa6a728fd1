package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/wicaksana/swara/internal/engine"
)

const (
	defaultModel = "gemini-2.0-flash-live-001"
	defaultVoice = "Aoede"
)

// Config holds the process configuration, loaded from the environment
// with an optional .env file.
type Config struct {
	// APIKey authenticates against the Gemini API. Required.
	APIKey string
	// Model is the live model identifier.
	Model string
	// Voice is the prebuilt voice name for synthesized speech.
	Voice string
	// SystemInstruction primes the model's persona. Optional.
	SystemInstruction string
	// TalkMode selects the initial capture gating mode.
	TalkMode engine.TalkMode
	// Volume is the output gain in [0, 1].
	Volume float64
	// MonitorAddr is the listen address of the monitor HTTP surface.
	// Empty disables the monitor.
	MonitorAddr string
	// MonitorSecret signs monitor access tokens. Empty disables auth.
	MonitorSecret string
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	cfg := &Config{
		APIKey:            apiKey,
		Model:             envOrDefault("SWARA_MODEL", defaultModel),
		Voice:             envOrDefault("SWARA_VOICE", defaultVoice),
		SystemInstruction: os.Getenv("SWARA_SYSTEM_INSTRUCTION"),
		TalkMode:          engine.TalkModeContinuous,
		Volume:            1.0,
		MonitorAddr:       os.Getenv("SWARA_MONITOR_ADDR"),
		MonitorSecret:     os.Getenv("SWARA_MONITOR_SECRET"),
	}

	switch mode := os.Getenv("SWARA_TALK_MODE"); mode {
	case "", "continuous":
	case "push-to-talk":
		cfg.TalkMode = engine.TalkModePushToTalk
	default:
		return nil, fmt.Errorf("SWARA_TALK_MODE must be %q or %q, got %q", "continuous", "push-to-talk", mode)
	}

	if raw := os.Getenv("SWARA_VOLUME"); raw != "" {
		volume, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("SWARA_VOLUME must be a number, got %q", raw)
		}
		if volume < 0 || volume > 1 {
			return nil, fmt.Errorf("SWARA_VOLUME must be between 0 and 1, got %f", volume)
		}
		cfg.Volume = volume
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
