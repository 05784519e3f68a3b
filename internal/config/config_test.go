package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/types"
)

func tempConfig(t *testing.T) *Config {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "config.json"))
}

func TestLoadCreatesDefaults(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())

	snap := c.Snapshot()
	assert.Equal(t, string(types.ModeSystem), snap.Recording.Mode)
	assert.Equal(t, DefaultFormat, snap.Recording.Format)
	assert.Equal(t, types.DefaultSilenceThreshold, snap.Recording.SilenceThreshold)
	assert.Equal(t, DefaultPort, snap.Server.Port)
	assert.Equal(t, DefaultBotTokenEnv, snap.Voice.TokenEnv)

	// The default file was written for the user to edit.
	_, err := os.Stat(c.filePath)
	require.NoError(t, err)
}

func TestLoadRoundTrip(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())

	rec := c.Snapshot().Recording
	rec.Format = string(types.FormatOGG)
	rec.MaxDurationMinutes = 30
	rec.TrimSilence = true
	require.NoError(t, c.SetRecording(rec))

	reloaded := New(c.filePath)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, types.FormatOGG, reloaded.Format())
	assert.Equal(t, 30*time.Minute, reloaded.MaxDuration())
	assert.True(t, reloaded.Snapshot().Recording.TrimSilence)
}

func TestSetRecordingRejectsInvalid(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())

	rec := c.Snapshot().Recording
	rec.Format = "mp3"
	require.Error(t, c.SetRecording(rec))
	// The bad value did not stick.
	assert.Equal(t, DefaultFormat, c.Snapshot().Recording.Format)

	rec = c.Snapshot().Recording
	rec.MaxDurationMinutes = 7
	require.Error(t, c.SetRecording(rec))
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.Error(t, New(path).Load())
}

func TestBotTokenFromEnv(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())
	t.Setenv(DefaultBotTokenEnv, "token-123")
	assert.Equal(t, "token-123", c.BotToken())
}

func TestUploadConfigured(t *testing.T) {
	c := tempConfig(t)
	require.NoError(t, c.Load())
	assert.False(t, c.UploadConfigured())

	require.NoError(t, c.SetUpload(UploadConfig{
		Bucket:          "recordings",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
	}))
	assert.True(t, c.UploadConfigured())
}

func TestValidMaxDuration(t *testing.T) {
	assert.True(t, ValidMaxDuration(0))
	assert.True(t, ValidMaxDuration(120))
	assert.False(t, ValidMaxDuration(7))
}
