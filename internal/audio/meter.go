package audio

import (
	"math"
	"sync"
	"time"
)

const (
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
	// DefaultLevelDecay is the geometric decay applied to the running level
	// each update when no louder peak arrives.
	DefaultLevelDecay = 0.95
	// DefaultPeakHoldDuration is how long a peak is held before it decays.
	DefaultPeakHoldDuration = 3000 * time.Millisecond
)

// BlockPeak returns the peak absolute sample value of the block,
// normalized to [0,1].
func BlockPeak(b Block) float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	return peak / MaxSampleValue
}

// BlockRMS returns the root-mean-square level of the block, normalized to [0,1].
func BlockRMS(b Block) float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(b.Samples))) / MaxSampleValue
}

// Meter maintains a decayed running level and a peak-hold value for the
// live VU display. It rises instantly to a new peak and decays
// geometrically per update. It is safe for concurrent use and has no
// effect on encoding.
type Meter struct {
	mu           sync.Mutex
	level        float64
	heldPeak     float64
	peakHeldAt   time.Time
	decay        float64
	holdDuration time.Duration
}

// NewMeter returns a Meter with default decay and hold duration.
func NewMeter() *Meter {
	return &Meter{
		decay:        DefaultLevelDecay,
		holdDuration: DefaultPeakHoldDuration,
	}
}

// Update feeds a new block peak into the meter at the given time.
func (m *Meter) Update(peak float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level *= m.decay
	if peak > m.level {
		m.level = peak
	}

	if peak >= m.heldPeak || now.Sub(m.peakHeldAt) > m.holdDuration {
		m.heldPeak = peak
		m.peakHeldAt = now
	}
}

// Level returns the current decayed level in [0,1].
func (m *Meter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// PeakHold returns the held peak value in [0,1].
func (m *Meter) PeakHold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldPeak
}
