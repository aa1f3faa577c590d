// Package config holds the runtime settings, read from LUNA_ prefixed
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/koscakluka/luna/core/logging"
)

type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"L.U.N.A."`
	Debug    bool   `env:"DEBUG"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	LogJSON  bool   `env:"LOG_JSON"`
	DataDir  string `env:"DATA_DIR" envDefault:"~/.luna"`

	Audio AudioConfig        `envPrefix:"AUDIO_"`
	STT   SpeechToTextConfig `envPrefix:"STT_"`
	LLM   LLMConfig          `envPrefix:"LLM_"`
	Agent AgentConfig        `envPrefix:"AGENT_"`
	TTS   TTSConfig          `envPrefix:"TTS_"`
	Bus   BusConfig          `envPrefix:"BUS_"`
	UI    UIConfig           `envPrefix:"UI_"`
}

type AudioConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Backend is one of "miniaudio" or "portaudio".
	Backend          string        `env:"BACKEND" envDefault:"miniaudio"`
	InputDeviceIndex *int          `env:"INPUT_DEVICE_INDEX"`
	SampleRate       int           `env:"SAMPLE_RATE" envDefault:"16000"`
	ChunkSize        int           `env:"CHUNK_SIZE" envDefault:"1024"`
	Channels         int           `env:"CHANNELS" envDefault:"1"`
	SilenceThreshold int           `env:"SILENCE_THRESHOLD" envDefault:"3000"`
	SilenceLimit     time.Duration `env:"SILENCE_LIMIT" envDefault:"3s"`
}

type SpeechToTextConfig struct {
	APIKey      string        `env:"API_KEY"`
	Model       string        `env:"MODEL" envDefault:"nova-3"`
	Language    string        `env:"LANGUAGE" envDefault:"en-US"`
	Endpointing time.Duration `env:"ENDPOINTING" envDefault:"300ms"`
}

type LLMConfig struct {
	ModelName        string        `env:"MODEL_NAME" envDefault:"llama3"`
	BaseURL          string        `env:"BASE_URL" envDefault:"http://localhost:11434"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxRetries       uint          `env:"MAX_RETRIES" envDefault:"3"`
	Temperature      float64       `env:"TEMPERATURE" envDefault:"0.7"`
	FailureThreshold int           `env:"FAILURE_THRESHOLD" envDefault:"5"`
	RecoveryTimeout  time.Duration `env:"RECOVERY_TIMEOUT" envDefault:"60s"`
}

type AgentConfig struct {
	HistoryLimit int `env:"HISTORY_LIMIT" envDefault:"20"`
}

type TTSConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	// Engine is one of "espeak-ng" or "deepgram".
	Engine string `env:"ENGINE" envDefault:"espeak-ng"`
	Voice  string `env:"VOICE" envDefault:"en"`
	Speed  int    `env:"SPEED" envDefault:"175"`
	Pitch  int    `env:"PITCH" envDefault:"50"`
	Volume int    `env:"VOLUME" envDefault:"100"`
	APIKey string `env:"API_KEY"`
	Model  string `env:"MODEL" envDefault:"aura-2-thalia-en"`
}

type BusConfig struct {
	MaxInFlight     int           `env:"MAX_IN_FLIGHT" envDefault:"256"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

type UIConfig struct {
	Enabled  bool `env:"ENABLED" envDefault:"true"`
	LogLines int  `env:"LOG_LINES" envDefault:"200"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg, EnvPrefix); err != nil {
		return Config{}, err
	}

	if cfg.STT.APIKey == "" {
		cfg.STT.APIKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if cfg.TTS.APIKey == "" {
		cfg.TTS.APIKey = cfg.STT.APIKey
	}

	dir, err := expandHome(cfg.DataDir)
	if err != nil {
		return Config{}, err
	}
	cfg.DataDir = dir

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.Audio.Backend {
	case "miniaudio", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.Audio.Backend))
	}
	switch c.TTS.Engine {
	case "espeak-ng", "deepgram":
	default:
		errs = append(errs, fmt.Errorf("unknown tts engine %q", c.TTS.Engine))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio sample rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Agent.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("agent history limit must not be negative, got %d", c.Agent.HistoryLimit))
	}
	if c.LLM.FailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("llm failure threshold must be positive, got %d", c.LLM.FailureThreshold))
	}
	return errors.Join(errs...)
}

// Level returns the configured log level, forced to debug in debug mode.
func (c Config) Level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) LogFilePath() string { return filepath.Join(c.DataDir, "logs", "luna.log") }
func (c Config) CacheDir() string    { return filepath.Join(c.DataDir, "cache") }
func (c Config) ModelsDir() string   { return filepath.Join(c.DataDir, "models") }

// EnsureDirectories creates the data directory and its subdirectories.
func (c Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, filepath.Join(c.DataDir, "logs"), c.ModelsDir(), c.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
