//go:build linux

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jmpijll/discrec/internal/types"
)

// captureSinkName is the private null sink Discord's streams are routed
// into. Its monitor source is what gets recorded.
const captureSinkName = "discrec_capture"

// routingGraph is the PulseAudio plumbing that isolates Discord's
// playback: a null sink, a loopback from its monitor back to the user's
// real output so the call stays audible, and the Discord sink inputs
// moved onto the null sink. Teardown is unconditional so a crash of a
// previous run never leaves streams stranded on a dead sink.
type routingGraph struct {
	nullSinkModule int
	loopbackModule int
	moved          []sinkInput
}

func pactl(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "pactl", args...).Output()
	if err != nil {
		return "", fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// setup builds the graph. It fails with types.ErrSourceNotFound when no
// Discord stream exists to route, and tears down anything half-built.
func (g *routingGraph) setup(ctx context.Context) error {
	defaultSink, err := pactl(ctx, "get-default-sink")
	if err != nil {
		return fmt.Errorf("%w: querying default sink: %v", types.ErrDeviceUnavailable, err)
	}
	defaultSink = strings.TrimSpace(defaultSink)

	out, err := pactl(ctx, "load-module", "module-null-sink",
		"sink_name="+captureSinkName,
		"sink_properties=device.description="+captureSinkName)
	if err != nil {
		return fmt.Errorf("%w: creating capture sink: %v", types.ErrDeviceUnavailable, err)
	}
	if idx, ok := parseModuleIndex(out); ok {
		g.nullSinkModule = idx
	}

	out, err = pactl(ctx, "load-module", "module-loopback",
		"source="+captureSinkName+".monitor",
		"sink="+defaultSink,
		"latency_msec=20")
	if err != nil {
		g.teardown()
		return fmt.Errorf("%w: creating monitor loopback: %v", types.ErrDeviceUnavailable, err)
	}
	if idx, ok := parseModuleIndex(out); ok {
		g.loopbackModule = idx
	}

	listing, err := pactl(ctx, "list", "sink-inputs")
	if err != nil {
		g.teardown()
		return fmt.Errorf("%w: listing sink inputs: %v", types.ErrDeviceUnavailable, err)
	}
	targets := discordSinkInputs(parseSinkInputs(listing))
	if len(targets) == 0 {
		g.teardown()
		return fmt.Errorf("%w: no Discord playback stream found", types.ErrSourceNotFound)
	}
	for _, in := range targets {
		if _, err := pactl(ctx, "move-sink-input", strconv.Itoa(in.Index), captureSinkName); err != nil {
			slog.Warn("Failed to move sink input", "index", in.Index, "error", err)
			continue
		}
		g.moved = append(g.moved, in)
		slog.Info("Routed Discord stream to capture sink", "index", in.Index, "process", in.ProcessName)
	}
	if len(g.moved) == 0 {
		g.teardown()
		return fmt.Errorf("%w: could not route any Discord stream", types.ErrSourceNotFound)
	}
	return nil
}

// teardown restores moved streams and unloads the modules. Errors are
// logged and ignored; every step runs regardless of earlier failures.
func (g *routingGraph) teardown() {
	ctx := context.Background()
	for _, in := range g.moved {
		if in.Sink == "" {
			continue
		}
		if _, err := pactl(ctx, "move-sink-input", strconv.Itoa(in.Index), in.Sink); err != nil {
			slog.Warn("Failed to restore sink input", "index", in.Index, "error", err)
		}
	}
	g.moved = nil
	for _, mod := range []int{g.loopbackModule, g.nullSinkModule} {
		if mod == 0 {
			continue
		}
		if _, err := pactl(ctx, "unload-module", strconv.Itoa(mod)); err != nil {
			slog.Warn("Failed to unload PulseAudio module", "module", mod, "error", err)
		}
	}
	g.loopbackModule = 0
	g.nullSinkModule = 0
}
