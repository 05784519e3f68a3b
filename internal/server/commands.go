package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/recording"
)

// uploadTestTimeout bounds the bucket connectivity probe.
const uploadTestTimeout = 30 * time.Second

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	engine *recording.Engine
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, engine *recording.Engine) *CommandHandler {
	return &CommandHandler{cfg: cfg, engine: engine}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g. "recording/start").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	parts := strings.SplitN(cmd.Type, "/", 2)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch namespace {
	case "recording":
		h.handleRecording(action, cmd, send)
	case "settings":
		h.handleSettings(action, cmd, send)
	case "upload":
		h.handleUpload(action, cmd, send)
	case "config":
		h.handleConfig(action, cmd, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// handleRecording routes recording/* commands.
func (h *CommandHandler) handleRecording(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		// Starting can block on device setup or the Discord gateway.
		HandleActionAsync(cmd, send, func() (any, error) {
			status, err := h.engine.Start(context.Background())
			if err != nil {
				return nil, err
			}
			return status, nil
		})
	case "stop":
		HandleActionAsync(cmd, send, func() (any, error) {
			result, err := h.engine.Stop()
			if err != nil {
				return nil, err
			}
			return result, nil
		})
	case "status":
		SendSuccess(send, cmd.Type, h.engine.Status())
	default:
		slog.Warn("unknown recording action", "action", action)
	}
}

// handleSettings routes settings/* commands.
func (h *CommandHandler) handleSettings(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "recording":
		HandleCommand(h, cmd, send, func(req *RecordingUpdateRequest) error {
			rec := h.cfg.Snapshot().Recording
			applyRecording(&rec, req)
			return h.cfg.SetRecording(rec)
		})
	case "voice":
		HandleCommand(h, cmd, send, func(req *VoiceUpdateRequest) error {
			v := h.cfg.Snapshot().Voice
			applyVoice(&v, req)
			return h.cfg.SetVoice(v)
		})
	case "upload":
		HandleCommand(h, cmd, send, func(req *UploadUpdateRequest) error {
			u := h.cfg.Snapshot().Upload
			applyUpload(&u, req)
			if err := h.cfg.SetUpload(u); err != nil {
				return err
			}
			h.engine.ReloadUpload()
			return nil
		})
	default:
		slog.Warn("unknown settings action", "action", action)
	}
}

// handleUpload routes upload/* commands.
func (h *CommandHandler) handleUpload(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), uploadTestTimeout)
			defer cancel()
			return nil, h.engine.TestUpload(ctx)
		})
	default:
		slog.Warn("unknown upload action", "action", action)
	}
}

// handleConfig routes config/* commands.
func (h *CommandHandler) handleConfig(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		SendSuccess(send, cmd.Type, RedactSnapshot(h.cfg.Snapshot()))
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// RedactSnapshot masks credentials before a snapshot leaves the process.
func RedactSnapshot(snap config.Snapshot) config.Snapshot {
	if snap.Upload.SecretAccessKey != "" {
		snap.Upload.SecretAccessKey = "********"
	}
	return snap
}

func applyRecording(rec *config.RecordingConfig, req *RecordingUpdateRequest) {
	if req.Mode != nil {
		rec.Mode = *req.Mode
	}
	if req.OutputDir != nil {
		rec.OutputDir = *req.OutputDir
	}
	if req.Format != nil {
		rec.Format = *req.Format
	}
	if req.TrimSilence != nil {
		rec.TrimSilence = *req.TrimSilence
	}
	if req.SilenceThreshold != nil {
		rec.SilenceThreshold = *req.SilenceThreshold
	}
	if req.SilenceWindowSec != nil {
		rec.SilenceWindowSec = *req.SilenceWindowSec
	}
	if req.MaxDurationMinutes != nil {
		rec.MaxDurationMinutes = *req.MaxDurationMinutes
	}
	if req.Device != nil {
		rec.Device = *req.Device
	}
}

func applyVoice(v *config.VoiceConfig, req *VoiceUpdateRequest) {
	if req.GuildID != nil {
		v.GuildID = *req.GuildID
	}
	if req.ChannelID != nil {
		v.ChannelID = *req.ChannelID
	}
	if req.TokenEnv != nil {
		v.TokenEnv = *req.TokenEnv
	}
	if req.Notify != nil {
		v.Notify = *req.Notify
	}
	if req.AutoStopOnEmpty != nil {
		v.AutoStopOnEmpty = *req.AutoStopOnEmpty
	}
}

func applyUpload(u *config.UploadConfig, req *UploadUpdateRequest) {
	if req.Endpoint != nil {
		u.Endpoint = *req.Endpoint
	}
	if req.Region != nil {
		u.Region = *req.Region
	}
	if req.Bucket != nil {
		u.Bucket = *req.Bucket
	}
	if req.AccessKeyID != nil {
		u.AccessKeyID = *req.AccessKeyID
	}
	if req.SecretAccessKey != nil {
		u.SecretAccessKey = *req.SecretAccessKey
	}
	if req.Prefix != nil {
		u.Prefix = *req.Prefix
	}
}
