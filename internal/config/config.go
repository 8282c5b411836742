package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config stores runtime configuration for the voice session engine.
type Config struct {
	Gemini    GeminiConfig
	Audio     AudioConfig
	Inventory InventoryConfig
	Session   SessionConfig
}

type GeminiConfig struct {
	APIKey     string
	APIBaseURL string
	LiveModel  string
	TTSModel   string
	Voice      string
}

type AudioConfig struct {
	RecorderCommand string
	PlayerCommand   string
	InputFormat     string
	InputDevice     string
	InputSampleRate int
	OutputSampleRate int
	Channels        int
}

type InventoryConfig struct {
	DBPath     string
	UserID     string
	Categories []string
}

type SessionConfig struct {
	FrameSize int
	Greeting  string
}

// Load resolves configuration from environment variables and sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	cfg := Config{
		Gemini: GeminiConfig{
			APIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
			APIBaseURL: envOrDefault("GEMINI_API_BASE", "wss://generativelanguage.googleapis.com"),
			LiveModel:  envOrDefault("STOCKPILOT_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
			TTSModel:   envOrDefault("STOCKPILOT_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
			Voice:      envOrDefault("STOCKPILOT_VOICE", "Kore"),
		},
		Audio: AudioConfig{
			RecorderCommand:  envOrDefault("STOCKPILOT_FFMPEG_COMMAND", "ffmpeg"),
			PlayerCommand:    envOrDefault("STOCKPILOT_FFPLAY_COMMAND", "ffplay"),
			InputFormat:      envOrDefault("STOCKPILOT_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice:      envOrDefault("STOCKPILOT_AUDIO_INPUT_DEVICE", "default"),
			InputSampleRate:  envOrDefaultInt("STOCKPILOT_INPUT_SAMPLE_RATE", 16000),
			OutputSampleRate: envOrDefaultInt("STOCKPILOT_OUTPUT_SAMPLE_RATE", 24000),
			Channels:         envOrDefaultInt("STOCKPILOT_CHANNELS", 1),
		},
		Inventory: InventoryConfig{
			DBPath:     envOrDefault("STOCKPILOT_DB_PATH", filepath.Join(home, ".local", "share", "stockpilot", "inventory.db")),
			UserID:     envOrDefault("STOCKPILOT_USER_ID", "local"),
			Categories: splitCategories(os.Getenv("STOCKPILOT_CATEGORIES")),
		},
		Session: SessionConfig{
			FrameSize: envOrDefaultInt("STOCKPILOT_FRAME_SIZE", 4096),
			Greeting:  envOrDefault("STOCKPILOT_GREETING", "Hello, how can I help you?"),
		},
	}

	if cfg.Audio.InputSampleRate <= 0 {
		cfg.Audio.InputSampleRate = 16000
	}
	if cfg.Audio.OutputSampleRate <= 0 {
		cfg.Audio.OutputSampleRate = 24000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Session.FrameSize < 256 {
		cfg.Session.FrameSize = 4096
	}
	if len(cfg.Inventory.Categories) == 0 {
		cfg.Inventory.Categories = []string{"general"}
	}

	return cfg, nil
}

func splitCategories(raw string) []string {
	var categories []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			categories = append(categories, part)
		}
	}
	return categories
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
