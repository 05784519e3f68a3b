package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

// blockQueueSize bounds in-flight blocks between the device callback and
// the session reader. At 10ms per device period this is roughly a third
// of a second of audio; a full queue makes the callback block, which is
// preferable to silently dropping samples.
const blockQueueSize = 32

// devicePicker selects the capture device and type for a platform. It
// receives the enumerated devices of the requested type and returns the
// one to open, or nil to use the system default.
type devicePicker func(infos []malgo.DeviceInfo) (*malgo.DeviceInfo, error)

// pickByKeyword selects the first device whose name contains keyword.
func pickByKeyword(keyword string) devicePicker {
	return func(infos []malgo.DeviceInfo) (*malgo.DeviceInfo, error) {
		for i := range infos {
			if matchDeviceName(infos[i].Name(), []string{keyword}) {
				return &infos[i], nil
			}
		}
		return nil, fmt.Errorf("%w: no capture device matches %q", types.ErrDeviceUnavailable, keyword)
	}
}

// deviceSource is the malgo-backed Source shared by all platforms. The
// platform variants differ only in device type, picker and setup/cleanup
// hooks.
type deviceSource struct {
	name       string
	cfg        Config
	deviceType malgo.DeviceType

	// setup runs before the device opens (Linux builds its routing
	// graph here). cleanup always runs on Stop, even when Start failed
	// partway through.
	setup   func(ctx context.Context) error
	cleanup func()
	pick    devicePicker

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	actx    *malgo.AllocatedContext
	device  *malgo.Device
	blocks  chan audio.Block
	seq     uint64
	pending []int16
}

func (s *deviceSource) Name() string { return s.name }

func (s *deviceSource) Start(ctx context.Context) (<-chan audio.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, fmt.Errorf("%s: %w", s.name, types.ErrAlreadyCapturing)
	}

	if s.setup != nil {
		if err := s.setup(ctx); err != nil {
			s.runCleanup()
			return nil, err
		}
	}

	actx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		slog.Debug("Audio backend message", "source", s.name, "message", strings.TrimSpace(msg))
	})
	if err != nil {
		s.runCleanup()
		return nil, fmt.Errorf("%w: initializing audio backend: %v", types.ErrDeviceUnavailable, err)
	}
	s.actx = actx

	deviceConfig := malgo.DefaultDeviceConfig(s.deviceType)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.cfg.Channels)
	deviceConfig.SampleRate = uint32(s.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if s.pick != nil {
		enumType := s.deviceType
		if enumType == malgo.Loopback {
			enumType = malgo.Playback
		}
		infos, err := actx.Devices(enumType)
		if err != nil {
			s.teardownLocked()
			return nil, fmt.Errorf("%w: enumerating devices: %v", types.ErrDeviceUnavailable, err)
		}
		info, err := s.pick(infos)
		if err != nil {
			s.teardownLocked()
			return nil, err
		}
		if info != nil {
			deviceConfig.Capture.DeviceID = info.ID.Pointer()
			slog.Info("Capture device selected", "source", s.name, "device", info.Name())
		}
	}

	s.blocks = make(chan audio.Block, blockQueueSize)
	s.stopCh = make(chan struct{})
	frameBytes := s.cfg.Channels * 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			s.onData(input, int(frameCount), frameBytes)
		},
	}
	device, err := malgo.InitDevice(actx.Context, deviceConfig, callbacks)
	if err != nil {
		s.teardownLocked()
		return nil, fmt.Errorf("%w: opening capture device: %v", types.ErrDeviceUnavailable, err)
	}
	s.device = device

	if err := device.Start(); err != nil {
		s.teardownLocked()
		return nil, fmt.Errorf("%w: starting capture device: %v", types.ErrDeviceUnavailable, err)
	}

	s.started = true
	slog.Info("Capture started", "source", s.name, "sample_rate", s.cfg.SampleRate, "channels", s.cfg.Channels)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return s.blocks, nil
}

// onData runs on the device thread. It converts little-endian S16 bytes
// to samples and hands off fixed 20ms blocks. A full queue blocks here
// rather than dropping audio; Stop unblocks it via stopCh.
func (s *deviceSource) onData(input []byte, frameCount, frameBytes int) {
	if len(input) < frameCount*frameBytes {
		frameCount = len(input) / frameBytes
	}
	samples := make([]int16, frameCount*s.cfg.Channels)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(input[i*2:]))
	}
	s.pending = append(s.pending, samples...)

	blockSamples := s.cfg.SampleRate / 50 * s.cfg.Channels
	for len(s.pending) >= blockSamples {
		block := audio.Block{
			Samples:    append([]int16(nil), s.pending[:blockSamples]...),
			SampleRate: s.cfg.SampleRate,
			Channels:   s.cfg.Channels,
			Seq:        s.seq,
			Time:       time.Now(),
		}
		s.seq++
		s.pending = s.pending[blockSamples:]

		select {
		case s.blocks <- block:
		case <-s.stopCh:
			return
		}
	}
}

func (s *deviceSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	defer s.mu.Unlock()
	s.stopped = true
	if s.stopCh != nil {
		close(s.stopCh)
	}

	// Uninit waits for the data callback to return, so after teardown
	// no sender remains and the block channel can be closed.
	s.teardownLocked()
	if s.blocks != nil {
		close(s.blocks)
	}
	slog.Info("Capture stopped", "source", s.name)
	return nil
}

// teardownLocked releases the device, backend context and routing graph.
// Callers hold s.mu. Device uninit waits for the data callback to
// return, so the callback never outlives the block channel.
func (s *deviceSource) teardownLocked() {
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	if s.actx != nil {
		_ = s.actx.Uninit()
		s.actx.Free()
		s.actx = nil
	}
	s.runCleanup()
}

func (s *deviceSource) runCleanup() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}
