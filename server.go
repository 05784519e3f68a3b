package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmpijll/discrec/internal/config"
	"github.com/jmpijll/discrec/internal/recording"
	"github.com/jmpijll/discrec/internal/server"
	"github.com/jmpijll/discrec/internal/types"
)

// Server exposes the recorder to the desktop shell: one WebSocket with
// commands in and level/status frames out, plus a health endpoint.
type Server struct {
	config   *config.Config
	engine   *recording.Engine
	commands *server.CommandHandler
	version  *VersionChecker
}

// NewServer returns a Server wired to the given config and engine.
func NewServer(cfg *config.Config, engine *recording.Engine) *Server {
	return &Server{
		config:   cfg,
		engine:   engine,
		commands: server.NewCommandHandler(cfg, engine),
		version:  NewVersionChecker(),
	}
}

// Start begins serving and returns the http.Server for shutdown.
func (s *Server) Start() *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/health", s.handleHealth)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.config.Snapshot().Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Control server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Control server failed", "error", err)
		}
	}()
	return httpServer
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"state":   s.engine.Status().State,
		"version": s.version.Info().Current,
	})
}

// handleWebSocket handles bidirectional WebSocket communication for
// real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Buffered send channel; only the writer goroutine touches the
	// connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)
	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the
// connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches
// them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes periodic level and status frames.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(types.LevelPushInterval)
	statusTicker := time.NewTicker(types.StatusPushInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		close(send)
		return
	}

	for {
		select {
		case <-done:
			close(send)
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		case <-levelsTicker.C:
			if !trySend(s.buildWSLevels()) {
				close(send)
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				close(send)
				return
			}
		}
	}
}

// wsStatusResponse is the periodic status frame.
type wsStatusResponse struct {
	Type    string              `json:"type"`
	Session types.SessionStatus `json:"session"`
	Config  config.Snapshot     `json:"config"`
	Version types.VersionInfo   `json:"version"`
}

// wsLevelsResponse is the high-rate meter frame.
type wsLevelsResponse struct {
	Type     string  `json:"type"`
	Level    float64 `json:"level"`
	PeakHold float64 `json:"peak_hold"`
}

func (s *Server) buildWSStatus() wsStatusResponse {
	return wsStatusResponse{
		Type:    "status",
		Session: s.engine.Status(),
		Config:  server.RedactSnapshot(s.config.Snapshot()),
		Version: s.version.Info(),
	}
}

func (s *Server) buildWSLevels() wsLevelsResponse {
	level, peakHold := s.engine.Levels()
	return wsLevelsResponse{Type: "levels", Level: level, PeakHold: peakHold}
}
