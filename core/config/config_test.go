package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DEEPGRAM_API_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.AppName != "L.U.N.A." {
		t.Fatalf("expected default app name, got %q", cfg.AppName)
	}
	if cfg.LLM.ModelName != "llama3" || cfg.LLM.BaseURL != "http://localhost:11434" {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Timeout != 30*time.Second || cfg.LLM.RecoveryTimeout != time.Minute {
		t.Fatalf("unexpected llm durations: %+v", cfg.LLM)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.InputDeviceIndex != nil {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.TTS.Engine != "espeak-ng" || cfg.TTS.Speed != 175 {
		t.Fatalf("unexpected tts defaults: %+v", cfg.TTS)
	}
	if cfg.Agent.HistoryLimit != 20 {
		t.Fatalf("expected history limit 20, got %d", cfg.Agent.HistoryLimit)
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		t.Fatalf("expected data dir to be expanded, got %q", cfg.DataDir)
	}
}

func TestLoadReadsPrefixedVariables(t *testing.T) {
	t.Setenv("LUNA_DEBUG", "true")
	t.Setenv("LUNA_LLM_MODEL_NAME", "mistral")
	t.Setenv("LUNA_AUDIO_INPUT_DEVICE_INDEX", "2")
	t.Setenv("LUNA_BUS_SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("LUNA_DATA_DIR", t.TempDir())
	t.Setenv("DEEPGRAM_API_KEY", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !cfg.Debug || cfg.Level() != slog.LevelDebug {
		t.Fatalf("expected debug mode to force debug level")
	}
	if cfg.LLM.ModelName != "mistral" {
		t.Fatalf("expected model override, got %q", cfg.LLM.ModelName)
	}
	if cfg.Audio.InputDeviceIndex == nil || *cfg.Audio.InputDeviceIndex != 2 {
		t.Fatalf("expected device index 2, got %v", cfg.Audio.InputDeviceIndex)
	}
	if cfg.Bus.ShutdownTimeout != 2*time.Second {
		t.Fatalf("expected shutdown timeout 2s, got %s", cfg.Bus.ShutdownTimeout)
	}
	if cfg.STT.APIKey != "secret" || cfg.TTS.APIKey != "secret" {
		t.Fatalf("expected deepgram key fallback, got stt=%q tts=%q", cfg.STT.APIKey, cfg.TTS.APIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad int", key: "LUNA_AUDIO_SAMPLE_RATE", value: "fast"},
		{name: "bad backend", key: "LUNA_AUDIO_BACKEND", value: "alsa"},
		{name: "bad engine", key: "LUNA_TTS_ENGINE", value: "festival"},
		{name: "bad level", key: "LUNA_LOG_LEVEL", value: "loud"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv("LUNA_DATA_DIR", t.TempDir())
			t.Setenv(testCase.key, testCase.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", testCase.key, testCase.value)
			}
		})
	}
}

func TestParseEnvError(t *testing.T) {
	type target struct {
		Port int `env:"PORT"`
	}
	t.Setenv("LUNA_TEST_PORT", "not-an-int")

	var cfg target
	err := ParseEnv(&cfg, "LUNA_TEST_")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := Config{DataDir: filepath.Join(t.TempDir(), "luna")}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{"logs", "models", "cache"} {
		if info, err := os.Stat(filepath.Join(cfg.DataDir, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s directory, got %v", dir, err)
		}
	}
	if got := cfg.LogFilePath(); got != filepath.Join(cfg.DataDir, "logs", "luna.log") {
		t.Fatalf("unexpected log file path %q", got)
	}
}
