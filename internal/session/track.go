package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/encoder"
	"github.com/jmpijll/discrec/internal/types"
)

// trackQueueSize bounds blocks between capture and the encoder writer.
// At 20ms per block this is about five seconds of audio.
const trackQueueSize = 256

// trackRunner owns one track's encoder: a bounded block queue drained by
// a single writer goroutine. Encoder failures are confined to the track;
// the writer keeps draining so the feeder never blocks on a dead track.
type trackRunner struct {
	id    string
	label string
	sink  encoder.Sink
	meter *audio.Meter

	blocks  chan audio.Block
	drained chan struct{}

	mu      sync.Mutex
	state   types.TrackState
	err     error
	frames  uint64
	rate    int
	path    string
	blocked time.Time
}

func newTrackRunner(id, label string, sink encoder.Sink, meter *audio.Meter) *trackRunner {
	t := &trackRunner{
		id:      id,
		label:   label,
		sink:    sink,
		meter:   meter,
		blocks:  make(chan audio.Block, trackQueueSize),
		drained: make(chan struct{}),
		state:   types.TrackOpen,
		path:    sink.Path(),
	}
	go t.run()
	return t
}

// enqueue queues a block for encoding, blocking when the queue is full.
// Sustained backpressure is logged once per stall.
func (t *trackRunner) enqueue(b audio.Block) {
	select {
	case t.blocks <- b:
		return
	default:
	}
	warn := time.NewTimer(types.BackpressureWarnAfter)
	defer warn.Stop()
	for {
		select {
		case t.blocks <- b:
			return
		case <-warn.C:
			slog.Warn("Track queue full, capture blocked", "track", t.id, "queued", len(t.blocks))
		}
	}
}

// closeInput signals end of audio. The writer drains the queue, then
// drained closes. Finalize or abort must follow.
func (t *trackRunner) closeInput() {
	close(t.blocks)
}

func (t *trackRunner) run() {
	defer close(t.drained)
	for b := range t.blocks {
		t.meter.Update(audio.BlockPeak(b), b.Time)

		t.mu.Lock()
		failed := t.state == types.TrackFailed
		t.mu.Unlock()
		if failed {
			continue // drain only
		}
		if err := t.sink.WriteBlock(b); err != nil {
			t.failWrite(err)
			continue
		}
		t.mu.Lock()
		t.frames += uint64(b.Frames())
		t.rate = b.SampleRate
		t.mu.Unlock()
	}
}

// failWrite marks the track failed and removes its partial file. The
// writer keeps running to drain the queue.
func (t *trackRunner) failWrite(err error) {
	t.mu.Lock()
	t.state = types.TrackFailed
	t.err = err
	t.mu.Unlock()
	slog.Error("Track encoding failed", "track", t.id, "path", t.path, "error", err)
	if abortErr := t.sink.Abort(); abortErr != nil {
		slog.Warn("Track abort failed", "track", t.id, "error", abortErr)
	}
}

// finalize waits for the writer to drain, then flushes and closes the
// file. Returns the final path, or the write error for failed tracks.
func (t *trackRunner) finalize() (string, error) {
	<-t.drained

	t.mu.Lock()
	if t.state == types.TrackFailed {
		err := t.err
		t.mu.Unlock()
		return "", err
	}
	t.state = types.TrackFinalizing
	t.mu.Unlock()

	path, err := t.sink.Finalize()
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.state = types.TrackFailed
		t.err = err
		return "", err
	}
	t.state = types.TrackClosed
	t.path = path
	return path, nil
}

// abort waits for the writer to drain, then discards the partial file.
func (t *trackRunner) abort() {
	<-t.drained

	t.mu.Lock()
	alreadyFailed := t.state == types.TrackFailed
	t.state = types.TrackFailed
	t.mu.Unlock()
	if alreadyFailed {
		return
	}
	if err := t.sink.Abort(); err != nil {
		slog.Warn("Track abort failed", "track", t.id, "error", err)
	}
}

func (t *trackRunner) status() types.TrackStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := types.TrackStatus{
		ID:    t.id,
		Label: t.label,
		State: t.state,
		Path:  t.path,
	}
	if t.rate > 0 {
		st.Seconds = float64(t.frames) / float64(t.rate)
	}
	if t.err != nil {
		st.Error = t.err.Error()
	}
	return st
}
