package encoder

import (
	"sync"
	"time"

	"github.com/jmpijll/discrec/internal/audio"
)

// GateState is the silence gate's per-track state.
type GateState string

const (
	// GateAwaitingSound drops blocks until the first audible one.
	GateAwaitingSound GateState = "awaiting_sound"
	// GatePassing writes blocks through to the sink.
	GatePassing GateState = "passing"
	// GateBuffering holds a run of quiet blocks pending renewed sound.
	GateBuffering GateState = "buffering"
)

// DefaultGateWindow bounds how much trailing silence the gate holds
// before committing the oldest of it to the sink.
const DefaultGateWindow = 5 * time.Second

// SilenceGate is a Sink decorator that trims silence at recording
// boundaries. Leading blocks below the threshold are dropped outright;
// trailing quiet blocks are buffered and either flushed when sound
// resumes or discarded on Finalize. The gate depends only on the Sink
// contract, so it wraps any encoder variant.
type SilenceGate struct {
	mu        sync.Mutex
	sink      Sink
	threshold float64 // normalized peak amplitude
	window    time.Duration
	state     GateState
	buffered  []audio.Block
	bufSpan   time.Duration
}

// NewSilenceGate wraps sink with a gate at the given normalized
// threshold. A window of zero uses DefaultGateWindow.
func NewSilenceGate(sink Sink, threshold float64, window time.Duration) *SilenceGate {
	if window <= 0 {
		window = DefaultGateWindow
	}
	return &SilenceGate{
		sink:      sink,
		threshold: threshold,
		window:    window,
		state:     GateAwaitingSound,
	}
}

// State returns the gate's current state.
func (g *SilenceGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// WriteBlock applies the gate policy and forwards audible audio to the sink.
func (g *SilenceGate) WriteBlock(b audio.Block) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	audible := audio.BlockPeak(b) >= g.threshold

	switch g.state {
	case GateAwaitingSound:
		if !audible {
			return nil // leading silence: dropped, not buffered
		}
		g.state = GatePassing
		return g.sink.WriteBlock(b)

	case GatePassing:
		if audible {
			return g.sink.WriteBlock(b)
		}
		g.state = GateBuffering
		g.hold(b)
		return nil

	default: // GateBuffering
		if audible {
			if err := g.flushLocked(); err != nil {
				return err
			}
			g.state = GatePassing
			return g.sink.WriteBlock(b)
		}
		g.hold(b)
		// Keep memory bounded: silence older than the window is committed.
		// Trimming depth at finalize is therefore at most the window.
		for g.bufSpan > g.window && len(g.buffered) > 0 {
			oldest := g.buffered[0]
			g.buffered = g.buffered[1:]
			g.bufSpan -= oldest.Duration()
			if err := g.sink.WriteBlock(oldest); err != nil {
				return err
			}
		}
		return nil
	}
}

func (g *SilenceGate) hold(b audio.Block) {
	g.buffered = append(g.buffered, b)
	g.bufSpan += b.Duration()
}

// flushLocked writes all buffered blocks to the sink in order.
func (g *SilenceGate) flushLocked() error {
	for _, b := range g.buffered {
		if err := g.sink.WriteBlock(b); err != nil {
			return err
		}
	}
	g.buffered = nil
	g.bufSpan = 0
	return nil
}

// Finalize discards any buffered trailing silence and finalizes the sink.
func (g *SilenceGate) Finalize() (string, error) {
	g.mu.Lock()
	g.buffered = nil
	g.bufSpan = 0
	g.mu.Unlock()
	return g.sink.Finalize()
}

// Abort discards buffered blocks and aborts the sink.
func (g *SilenceGate) Abort() error {
	g.mu.Lock()
	g.buffered = nil
	g.bufSpan = 0
	g.mu.Unlock()
	return g.sink.Abort()
}

// Path returns the wrapped sink's target path.
func (g *SilenceGate) Path() string { return g.sink.Path() }
