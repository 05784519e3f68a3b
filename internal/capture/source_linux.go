//go:build linux

package capture

import (
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/jmpijll/discrec/internal/types"
)

// newPlatformSource captures the monitor of a private null sink that
// Discord's playback streams are routed into, so only call audio is
// recorded. A configured device substring bypasses routing and records
// that capture device directly.
func newPlatformSource(cfg Config) Source {
	if cfg.Device != "" {
		return &deviceSource{
			name:       "pulse-device",
			cfg:        cfg,
			deviceType: malgo.Capture,
			pick:       pickByKeyword(cfg.Device),
		}
	}

	graph := &routingGraph{}
	return &deviceSource{
		name:       "discord-monitor",
		cfg:        cfg,
		deviceType: malgo.Capture,
		setup:      graph.setup,
		cleanup:    graph.teardown,
		pick: func(infos []malgo.DeviceInfo) (*malgo.DeviceInfo, error) {
			for i := range infos {
				if matchDeviceName(infos[i].Name(), []string{captureSinkName + ".monitor", captureSinkName}) {
					return &infos[i], nil
				}
			}
			return nil, fmt.Errorf("%w: monitor of %s not found", types.ErrDeviceUnavailable, captureSinkName)
		},
	}
}
