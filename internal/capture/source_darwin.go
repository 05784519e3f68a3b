//go:build darwin

package capture

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/jmpijll/discrec/internal/types"
)

// virtualDeviceKeywords match the common loopback drivers users install
// to capture system output on macOS.
var virtualDeviceKeywords = []string{"blackhole", "loopback", "soundflower", "virtual"}

// newPlatformSource records from a virtual loopback device. macOS has no
// native playback capture, so a driver such as BlackHole must be set as
// (part of) the system output; its capture side is found by name.
func newPlatformSource(cfg Config) Source {
	src := &deviceSource{
		name:       "virtual-device",
		cfg:        cfg,
		deviceType: malgo.Capture,
	}
	if cfg.Device != "" {
		src.pick = pickByKeyword(cfg.Device)
		return src
	}
	src.pick = func(infos []malgo.DeviceInfo) (*malgo.DeviceInfo, error) {
		for i := range infos {
			if matchDeviceName(infos[i].Name(), virtualDeviceKeywords) {
				return &infos[i], nil
			}
		}
		return nil, fmt.Errorf("%w: no virtual loopback device installed (e.g. BlackHole)", types.ErrDeviceUnavailable)
	}
	return src
}
