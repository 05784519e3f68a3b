//go:build windows

package capture

import (
	"context"

	"github.com/gen2brain/malgo"
	"github.com/jmpijll/discrec/internal/audio"
)

// newPlatformSource captures system playback via WASAPI loopback. The
// Discord process check keeps start semantics consistent with the other
// platforms: recording a call that is not running is refused rather than
// producing an empty file.
func newPlatformSource(cfg Config) Source {
	src := &deviceSource{
		name:       "wasapi-loopback",
		cfg:        cfg,
		deviceType: malgo.Loopback,
	}
	if cfg.Device != "" {
		src.pick = pickByKeyword(cfg.Device)
	}
	return &processGatedSource{deviceSource: src}
}

// processGatedSource refuses to start while no Discord client runs.
type processGatedSource struct {
	*deviceSource
}

func (s *processGatedSource) Start(ctx context.Context) (<-chan audio.Block, error) {
	if _, err := findDiscordProcess(); err != nil {
		return nil, err
	}
	return s.deviceSource.Start(ctx)
}
