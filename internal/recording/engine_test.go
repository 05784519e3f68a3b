package recording

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/types"
)

func testEngine(t *testing.T) (*Engine, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, cfg.Load())
	rec := cfg.Snapshot().Recording
	rec.OutputDir = t.TempDir()
	require.NoError(t, cfg.SetRecording(rec))
	return NewEngine(cfg), cfg
}

func TestEngineIdleStatus(t *testing.T) {
	e, _ := testEngine(t)
	status := e.Status()
	assert.Equal(t, types.StateIdle, status.State)
	assert.False(t, status.Capturing)

	level, peak := e.Levels()
	assert.Zero(t, level)
	assert.Zero(t, peak)
}

func TestEngineStopWithoutSessionIsNoop(t *testing.T) {
	e, _ := testEngine(t)
	result, err := e.Stop()
	require.NoError(t, err)
	assert.Empty(t, result.Paths)
}

func TestEngineVoiceModeRequiresCredentials(t *testing.T) {
	e, cfg := testEngine(t)
	rec := cfg.Snapshot().Recording
	rec.Mode = string(types.ModeVoice)
	require.NoError(t, cfg.SetRecording(rec))

	_, err := e.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice mode requires")
	assert.Equal(t, types.StateIdle, e.Status().State)

	// A rejected start must not occupy the active slot.
	_, err = e.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrAlreadyCapturing)
	assert.Contains(t, err.Error(), "voice mode requires")
}

func TestEngineTestUploadUnconfigured(t *testing.T) {
	e, _ := testEngine(t)
	require.Error(t, e.TestUpload(context.Background()))
}
