// Package recording coordinates sessions: it enforces the single active
// recording, builds the right source for the configured mode and ships
// finished files to storage.
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmpijll/discrec/internal/capture"
	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/session"
	"github.com/jmpijll/discrec/internal/types"
	"github.com/jmpijll/discrec/internal/upload"
	"github.com/jmpijll/discrec/internal/util"
	"github.com/jmpijll/discrec/internal/voice"
)

// Engine owns the current session. A new recording can start only after
// the previous one reaches done or failed.
type Engine struct {
	cfg *config.Config

	mu       sync.Mutex
	current  *session.Session
	uploader *upload.Uploader
}

// NewEngine creates the engine and, when storage is configured, its
// uploader.
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{cfg: cfg}
	if cfg.UploadConfigured() {
		e.uploader = upload.New(cfg.Snapshot().Upload)
	}
	return e
}

// Start begins a new recording session using the current configuration.
// It fails with types.ErrAlreadyCapturing while a session is active.
func (e *Engine) Start(ctx context.Context) (types.SessionStatus, error) {
	snap := e.cfg.Snapshot()
	if err := util.CheckPathWritable(snap.Recording.OutputDir); err != nil {
		return e.Status(), fmt.Errorf("output directory %s: %w", snap.Recording.OutputDir, err)
	}
	sessCfg := session.Config{
		Origin:           "discord",
		OutputDir:        snap.Recording.OutputDir,
		Format:           e.cfg.Format(),
		SampleRate:       snap.Recording.SampleRate,
		Channels:         snap.Recording.Channels,
		TrimSilence:      snap.Recording.TrimSilence,
		SilenceThreshold: snap.Recording.SilenceThreshold,
		SilenceWindow:    e.cfg.SilenceWindow(),
		MaxDuration:      e.cfg.MaxDuration(),
	}

	var s *session.Session
	switch e.cfg.Mode() {
	case types.ModeVoice:
		token := e.cfg.BotToken()
		if token == "" || snap.Voice.GuildID == "" || snap.Voice.ChannelID == "" {
			return e.Status(), fmt.Errorf("voice mode requires a bot token, guild_id and channel_id")
		}
		bot := voice.NewBot(voice.Config{
			Token:           token,
			GuildID:         snap.Voice.GuildID,
			ChannelID:       snap.Voice.ChannelID,
			Notify:          snap.Voice.Notify,
			AutoStopOnEmpty: snap.Voice.AutoStopOnEmpty,
		})
		s = session.New(sessCfg, nil, bot)
		bot.OnEmpty = func() {
			if _, err := s.Stop(); err != nil {
				slog.Warn("Auto-stop failed", "session", s.ID, "error", err)
			}
		}
	default:
		src := capture.New(capture.Config{
			SampleRate: snap.Recording.SampleRate,
			Channels:   snap.Recording.Channels,
			Device:     snap.Recording.Device,
		})
		s = session.New(sessCfg, src, nil)
	}

	// Reserve the active slot before the slow part: joining a voice
	// gateway can take seconds and must not hold the engine lock, or
	// the level ticker stalls behind it.
	e.mu.Lock()
	if e.current != nil {
		st := e.current.Status()
		switch st.State {
		// Idle means another Start holds the slot and is still
		// bringing its session up.
		case types.StateIdle, types.StateCapturing, types.StateStopping:
			e.mu.Unlock()
			return st, fmt.Errorf("session %s is %s: %w", st.ID, st.State, types.ErrAlreadyCapturing)
		}
	}
	e.current = s
	e.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		return s.Status(), err
	}
	go e.watchFinish(s)
	return s.Status(), nil
}

// watchFinish queues the finished files for upload once the session
// completes on its own (max duration, auto-stop, failure).
func (e *Engine) watchFinish(s *session.Session) {
	<-s.Done()
	result, err := s.Stop()
	if err != nil {
		return
	}
	e.mu.Lock()
	uploader := e.uploader
	e.mu.Unlock()
	if uploader == nil {
		return
	}
	for _, path := range result.Paths {
		uploader.Enqueue(path)
	}
}

// Stop ends the active session. Stopping with nothing active is a no-op.
func (e *Engine) Stop() (types.Result, error) {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s == nil {
		return types.Result{}, nil
	}
	return s.Stop()
}

// Status returns the current session status, or an idle placeholder.
func (e *Engine) Status() types.SessionStatus {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	return statusOf(s)
}

func statusOf(s *session.Session) types.SessionStatus {
	if s == nil {
		return types.SessionStatus{State: types.StateIdle}
	}
	return s.Status()
}

// Levels returns the active session's meter readings.
func (e *Engine) Levels() (level, peakHold float64) {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()
	if s == nil {
		return 0, 0
	}
	return s.Level()
}

// ReloadUpload rebuilds the uploader after storage settings change.
func (e *Engine) ReloadUpload() {
	e.mu.Lock()
	old := e.uploader
	if e.cfg.UploadConfigured() {
		e.uploader = upload.New(e.cfg.Snapshot().Upload)
	} else {
		e.uploader = nil
	}
	e.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// TestUpload verifies the configured bucket is reachable.
func (e *Engine) TestUpload(ctx context.Context) error {
	e.mu.Lock()
	uploader := e.uploader
	e.mu.Unlock()
	if uploader == nil {
		return fmt.Errorf("upload is not configured")
	}
	return uploader.TestConnection(ctx)
}

// Shutdown stops the active session and drains pending uploads.
func (e *Engine) Shutdown() {
	if _, err := e.Stop(); err != nil {
		slog.Warn("Session stop during shutdown failed", "error", err)
	}
	e.mu.Lock()
	uploader := e.uploader
	e.uploader = nil
	e.mu.Unlock()
	if uploader != nil {
		uploader.Stop()
	}
}
