package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd(&rootOptions{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "luna version dev")
}

func TestVoicesCmd(t *testing.T) {
	cmd := newRootCmd(&rootOptions{})
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"voices"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "aura-2-thalia-en")
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	t.Setenv("LUNA_DATA_DIR", t.TempDir())
	t.Setenv("LUNA_LOG_LEVEL", "WARNING")

	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "DEBUG", "--no-ui", "--no-audio", "--no-speech"}))

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.False(t, cfg.UI.Enabled)
	assert.False(t, cfg.Audio.Enabled)
	assert.False(t, cfg.TTS.Enabled)
}

func TestLoadConfigKeepsEnvironmentWithoutFlags(t *testing.T) {
	t.Setenv("LUNA_DATA_DIR", t.TempDir())
	t.Setenv("LUNA_LOG_LEVEL", "WARNING")
	t.Setenv("LUNA_DEBUG", "true")

	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := loadConfig(cmd, opts)
	require.NoError(t, err)
	assert.Equal(t, "WARNING", cfg.LogLevel)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.UI.Enabled)
}

func TestLoadConfigRejectsInvalidFlag(t *testing.T) {
	t.Setenv("LUNA_DATA_DIR", t.TempDir())

	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--log-level", "LOUD"}))

	_, err := loadConfig(cmd, opts)
	assert.ErrorContains(t, err, "invalid configuration")
}
