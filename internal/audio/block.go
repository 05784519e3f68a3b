// Package audio provides the PCM block value type and level metering.
package audio

import "time"

// Block is an immutable chunk of interleaved signed 16-bit PCM samples.
// A block is produced by a capture source or voice decoder, tagged with a
// per-track sequence number, and consumed exactly once by one track
// pipeline. It is never mutated after creation.
type Block struct {
	Samples    []int16   // Interleaved PCM
	SampleRate int       // Hz
	Channels   int       // Interleaved channel count
	Seq        uint64    // Strictly increasing per producer
	Time       time.Time // Wall-clock capture time
}

// Frames returns the number of sample frames (samples per channel).
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the play time of the block.
func (b Block) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// SilentBlock returns a block of zero samples with the given shape. It is
// used to bridge packet-loss gaps so track timelines stay continuous.
func SilentBlock(frames, sampleRate, channels int, seq uint64, at time.Time) Block {
	return Block{
		Samples:    make([]int16, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
		Seq:        seq,
		Time:       at,
	}
}
