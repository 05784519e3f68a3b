package encoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/audio"
)

// memSink records written blocks for assertions.
type memSink struct {
	blocks    []audio.Block
	finalized bool
	aborted   bool
}

func (m *memSink) WriteBlock(b audio.Block) error {
	m.blocks = append(m.blocks, b)
	return nil
}

func (m *memSink) Finalize() (string, error) {
	m.finalized = true
	return "mem", nil
}

func (m *memSink) Abort() error {
	m.aborted = true
	return nil
}

func (m *memSink) Path() string { return "mem" }

func (m *memSink) frames() int {
	n := 0
	for _, b := range m.blocks {
		n += b.Frames()
	}
	return n
}

// toneBlock and quietBlock are 20 ms mono blocks at 48 kHz.
func toneBlock(amp int16) audio.Block {
	samples := make([]int16, 960)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return audio.Block{Samples: samples, SampleRate: 48000, Channels: 1}
}

func quietBlock() audio.Block {
	return audio.SilentBlock(960, 48000, 1, 0, time.Time{})
}

func TestGateDropsLeadingSilence(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, 0)

	for i := 0; i < 100; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	assert.Equal(t, GateAwaitingSound, g.State())
	assert.Empty(t, sink.blocks)

	require.NoError(t, g.WriteBlock(toneBlock(16384)))
	assert.Equal(t, GatePassing, g.State())
	assert.Len(t, sink.blocks, 1)
}

func TestGateAllSilentStreamWritesNothing(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, 0)

	for i := 0; i < 50; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	path, err := g.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "mem", path)
	assert.True(t, sink.finalized)
	assert.Empty(t, sink.blocks)
}

func TestGateTrimsTrailingSilenceOnly(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, 0)

	// 2 s silence, 3 s tone, 2 s silence (20 ms blocks).
	for i := 0; i < 100; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	for i := 0; i < 150; i++ {
		require.NoError(t, g.WriteBlock(toneBlock(16384)))
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	assert.Equal(t, GateBuffering, g.State())

	_, err := g.Finalize()
	require.NoError(t, err)

	// Only the 3 s tone span was written.
	assert.Equal(t, 150*960, sink.frames())
}

func TestGateFlushesMidStreamSilence(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, 0)

	require.NoError(t, g.WriteBlock(toneBlock(16384)))
	for i := 0; i < 50; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	assert.Equal(t, GateBuffering, g.State())
	assert.Equal(t, 1*960, sink.frames())

	// Renewed sound flushes the whole pause, then the new block.
	require.NoError(t, g.WriteBlock(toneBlock(16384)))
	assert.Equal(t, GatePassing, g.State())
	assert.Equal(t, 52*960, sink.frames())
}

func TestGateWindowBoundsBufferedSilence(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, time.Second)

	require.NoError(t, g.WriteBlock(toneBlock(16384)))
	// 3 s of silence against a 1 s window: the overflow is committed.
	for i := 0; i < 150; i++ {
		require.NoError(t, g.WriteBlock(quietBlock()))
	}
	assert.Equal(t, GateBuffering, g.State())
	committed := sink.frames() - 960
	assert.Equal(t, 100*960, committed)

	// Finalize drops only the window's worth of trailing silence.
	_, err := g.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 101*960, sink.frames())
}

func TestGateAbortDiscardsBuffer(t *testing.T) {
	sink := &memSink{}
	g := NewSilenceGate(sink, 0.005, 0)

	require.NoError(t, g.WriteBlock(toneBlock(16384)))
	require.NoError(t, g.WriteBlock(quietBlock()))
	require.NoError(t, g.Abort())
	assert.True(t, sink.aborted)
	assert.Equal(t, 1*960, sink.frames())
}
