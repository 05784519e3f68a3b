package server

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/recording"
	"github.com/jmpijll/discrec/internal/types"
)

func testHandler(t *testing.T) (*CommandHandler, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	return NewCommandHandler(cfg, recording.NewEngine(cfg)), cfg
}

func handle(t *testing.T, h *CommandHandler, cmdType string, data string) map[string]any {
	t.Helper()
	send := make(chan any, 8)
	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	h.Handle(cmd, send, func() {})
	msg := <-send
	out, ok := msg.(map[string]any)
	require.True(t, ok, "expected map response, got %T", msg)
	return out
}

func TestRecordingStatusCommand(t *testing.T) {
	h, _ := testHandler(t)
	resp := handle(t, h, "recording/status", "")
	assert.Equal(t, "recording/status_result", resp["type"])
	assert.Equal(t, true, resp["success"])

	status, ok := resp["data"].(types.SessionStatus)
	require.True(t, ok)
	assert.Equal(t, types.StateIdle, status.State)
}

func TestSettingsRecordingUpdate(t *testing.T) {
	h, cfg := testHandler(t)
	resp := handle(t, h, "settings/recording", `{"format":"wav","trim_silence":true,"max_duration_minutes":15}`)
	assert.Equal(t, true, resp["success"])

	snap := cfg.Snapshot()
	assert.Equal(t, "wav", snap.Recording.Format)
	assert.True(t, snap.Recording.TrimSilence)
	assert.Equal(t, 15, snap.Recording.MaxDurationMinutes)
	// Untouched fields keep their values.
	assert.Equal(t, config.DefaultSampleRate, snap.Recording.SampleRate)
}

func TestSettingsRecordingRejectsBadFormat(t *testing.T) {
	h, cfg := testHandler(t)
	resp := handle(t, h, "settings/recording", `{"format":"mp3"}`)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, config.DefaultFormat, cfg.Snapshot().Recording.Format)
}

func TestSettingsVoiceUpdate(t *testing.T) {
	h, cfg := testHandler(t)
	resp := handle(t, h, "settings/voice", `{"guild_id":"123456789","channel_id":"987654321","auto_stop_on_empty":true}`)
	assert.Equal(t, true, resp["success"])

	v := cfg.Snapshot().Voice
	assert.Equal(t, "123456789", v.GuildID)
	assert.Equal(t, "987654321", v.ChannelID)
	assert.True(t, v.AutoStopOnEmpty)
}

func TestConfigGetRedactsSecrets(t *testing.T) {
	h, cfg := testHandler(t)
	require.NoError(t, cfg.SetUpload(config.UploadConfig{
		Bucket:          "b",
		AccessKeyID:     "k",
		SecretAccessKey: "super-secret",
	}))

	resp := handle(t, h, "config/get", "")
	require.Equal(t, true, resp["success"])
	snap, ok := resp["data"].(config.Snapshot)
	require.True(t, ok)
	assert.Equal(t, "********", snap.Upload.SecretAccessKey)
	assert.Equal(t, "b", snap.Upload.Bucket)
}
