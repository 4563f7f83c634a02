package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	LogLevel  string       `json:"log_level"`
	Engines   []string     `json:"engines"` // tried in order: "whisper", "openai"
	Language  string       `json:"language"`
	Audio     AudioConfig  `json:"audio"`
	Whisper   WhisperConfig `json:"whisper"`
	OpenAI    OpenAIConfig `json:"openai"`
	OutputDir string       `json:"output_dir"`
}

type AudioConfig struct {
	ChunkSize     int          `json:"chunk_size"`      // samples per device read
	WindowSeconds int          `json:"window_seconds"`  // segment accumulation window
	QueueDepth    int          `json:"queue_depth"`     // per-source transcription queue bound
	Microphone    SourceConfig `json:"microphone"`
	SystemAudio   SourceConfig `json:"system_audio"`
}

type SourceConfig struct {
	Enabled  bool   `json:"enabled"`
	DeviceID string `json:"device_id"` // explicit override; empty means auto-select
}

type WhisperConfig struct {
	Model    string `json:"model"`    // "base", "small", etc.
	Language string `json:"language"` // "auto", "en", etc.
	Threads  int    `json:"threads"`  // 0 = auto-detect
}

type OpenAIConfig struct {
	APIKey string `json:"api_key"` // falls back to OPENAI_API_KEY
	Model  string `json:"model"`
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		LogLevel: "info",
		Engines:  []string{"whisper"},
		Language: "auto",
		Audio: AudioConfig{
			ChunkSize:     1024,
			WindowSeconds: 5,
			QueueDepth:    5,
			Microphone:    SourceConfig{Enabled: true},
			SystemAudio:   SourceConfig{Enabled: true},
		},
		Whisper: WhisperConfig{
			Model:    "base",
			Language: "auto",
			Threads:  0, // Auto-detect
		},
		OpenAI: OpenAIConfig{
			Model: "whisper-1",
		},
		OutputDir: "audio",
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// OpenAIKey resolves the API key from config or environment.
func (c *Config) OpenAIKey() string {
	if c.OpenAI.APIKey != "" {
		return c.OpenAI.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "loopscribe", "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "loopscribe", "models")
}
