// Package capture provides platform audio capture sources. Each platform
// contributes one Source variant behind the same contract: Windows
// captures Discord's output via device loopback, Linux builds a private
// PulseAudio routing graph and records its monitor source, macOS records
// from a user-installed virtual device. The session layer never needs to
// know which variant is active.
package capture

import (
	"context"

	"github.com/jmpijll/discrec/internal/audio"
)

// Config holds capture parameters shared by all platform variants.
type Config struct {
	// SampleRate is the requested capture rate in Hz.
	SampleRate int
	// Channels is the requested channel count.
	Channels int
	// Device optionally pins capture to a device whose name contains
	// this substring. Empty selects the platform default strategy.
	Device string
}

// Source produces a continuous stream of timestamped PCM blocks from one
// audio origin.
//
// Start begins the device stream and returns the block channel; it fails
// with types.ErrDeviceUnavailable, types.ErrPermissionDenied or
// types.ErrSourceNotFound. The channel is closed after Stop has drained
// in-flight buffers and released the device and any routing graph. Stop
// is safe to call more than once.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan audio.Block, error)
	Stop() error
}

// New returns the capture source for the current platform.
func New(cfg Config) Source {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	return newPlatformSource(cfg)
}
