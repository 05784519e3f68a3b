// Package types provides shared type definitions used across the recorder.
package types

import (
	"time"
)

// SessionState represents the current state of a recording session.
type SessionState string

const (
	// StateIdle indicates no recording is in progress.
	StateIdle SessionState = "idle"
	// StateCapturing indicates audio is being captured and encoded.
	StateCapturing SessionState = "capturing"
	// StateStopping indicates the session is draining and finalizing tracks.
	StateStopping SessionState = "stopping"
	// StateDone indicates the session finished and all files are finalized.
	StateDone SessionState = "done"
	// StateFailed indicates the session aborted; partial files were removed.
	StateFailed SessionState = "failed"
)

// TrackState represents the state of a single recorded track.
type TrackState string

const (
	// TrackOpen indicates the track accepts audio.
	TrackOpen TrackState = "open"
	// TrackFinalizing indicates the track is flushing its encoder.
	TrackFinalizing TrackState = "finalizing"
	// TrackClosed indicates the track's file is finalized.
	TrackClosed TrackState = "closed"
	// TrackFailed indicates the track aborted; its partial file was removed.
	TrackFailed TrackState = "failed"
)

// Mode selects the capture origin for a session.
type Mode string

const (
	// ModeSystem records Discord's output through the OS audio stack.
	ModeSystem Mode = "system"
	// ModeVoice records per-speaker streams from a voice channel bot.
	ModeVoice Mode = "voice"
)

// Format identifies the target audio file format.
type Format string

// Supported recording formats.
const (
	FormatWAV  Format = "wav"  // Uncompressed PCM
	FormatFLAC Format = "flac" // Lossless compression
	FormatOGG  Format = "ogg"  // Ogg Opus, voice bitrate
)

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	return string(f)
}

// Valid reports whether the format is one of the supported values.
func (f Format) Valid() bool {
	switch f {
	case FormatWAV, FormatFLAC, FormatOGG:
		return true
	}
	return false
}

// Timing constants shared by the session layer and the control surface.
const (
	// WatchdogPollInterval is how often the duration watchdog checks
	// elapsed wall-clock time against the configured limit.
	WatchdogPollInterval = 1000 * time.Millisecond
	// LevelPushInterval is how often the control surface pushes level frames.
	LevelPushInterval = 50 * time.Millisecond
	// StatusPushInterval is how often the control surface pushes status frames.
	StatusPushInterval = 1000 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
	// BackpressureWarnAfter is how long capture may stay blocked on a full
	// track queue before a warning is logged.
	BackpressureWarnAfter = 500 * time.Millisecond
)

// Voice stream constants. Discord voice delivers 48 kHz Opus in 20 ms frames.
const (
	// VoiceSampleRate is the voice stream sample rate in Hz.
	VoiceSampleRate = 48000
	// VoiceChannels is the per-speaker channel count after decode.
	VoiceChannels = 2
	// VoiceFrameSize is the number of samples per channel in a 20 ms frame.
	VoiceFrameSize = 960
)

// DefaultSilenceThreshold is the normalized peak amplitude below which a
// block counts as silence.
const DefaultSilenceThreshold = 0.005

// MaxDurationChoices are the allowed max-duration values in minutes.
// Zero means unlimited.
var MaxDurationChoices = []int{0, 5, 15, 30, 60, 120}

// TrackStatus contains runtime status for one track.
type TrackStatus struct {
	ID      string     `json:"id"`              // Track identifier (origin name or participant id)
	Label   string     `json:"label"`           // Display label used in the filename
	State   TrackState `json:"state"`           // Current track state
	Path    string     `json:"path"`            // Target file path
	Seconds float64    `json:"seconds"`         // Audio written, in seconds
	Error   string     `json:"error,omitempty"` // Error message for failed tracks
}

// SessionStatus is a consistent snapshot of a recording session.
type SessionStatus struct {
	ID        string        `json:"id"`              // Session identifier
	State     SessionState  `json:"state"`           // Current session state
	Capturing bool          `json:"capturing"`       // Convenience flag for the shell
	Elapsed   float64       `json:"elapsed"`         // Elapsed wall-clock seconds
	Level     float64       `json:"level"`           // Decayed peak level [0,1]
	PeakHold  float64       `json:"peak_hold"`       // Held peak level [0,1]
	Tracks    []TrackStatus `json:"tracks"`          // Per-track statuses
	Error     string        `json:"error,omitempty"` // Terminal error for failed sessions
}

// Result is the outcome of a finished session.
type Result struct {
	Paths    []string      `json:"paths"`    // Finalized file paths, one per track
	Duration time.Duration `json:"duration"` // Total wall-clock recording duration
}

// VersionInfo contains version information for the status surface.
type VersionInfo struct {
	Current     string `json:"current"`
	Latest      string `json:"latest,omitempty"`
	Commit      string `json:"commit,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	UpdateAvail bool   `json:"update_available"`
}
