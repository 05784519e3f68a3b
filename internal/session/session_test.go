package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
	"github.com/jmpijll/discrec/internal/voice"
)

const (
	testRate        = 48000
	blockFrames     = testRate / 50 // 20ms
	blocksPerSecond = 50            // 20ms blocks
)

func toneBlock(seq uint64, channels int) audio.Block {
	samples := make([]int16, blockFrames*channels)
	for i := range samples {
		samples[i] = 8000
	}
	return audio.Block{Samples: samples, SampleRate: testRate, Channels: channels, Seq: seq, Time: time.Now()}
}

func quietBlock(seq uint64, channels int) audio.Block {
	return audio.SilentBlock(blockFrames, testRate, channels, seq, time.Now())
}

// fakeSource replays a pre-filled block queue; Stop closes it so the
// session drains deterministically.
type fakeSource struct {
	blocks   chan audio.Block
	startErr error

	mu      sync.Mutex
	stopped bool
	stops   int
}

func newFakeSource(capacity int) *fakeSource {
	return &fakeSource{blocks: make(chan audio.Block, capacity)}
}

func (f *fakeSource) Name() string { return "discord" }

func (f *fakeSource) Start(context.Context) (<-chan audio.Block, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.blocks, nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if !f.stopped {
		f.stopped = true
		close(f.blocks)
	}
	return nil
}

// send offers a block without blocking. It shares the mutex with Stop
// so a concurrent close can never race the send.
func (f *fakeSource) send(b audio.Block) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	select {
	case f.blocks <- b:
		return true
	default:
		return false
	}
}

func wavSampleCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return len(buf.Data)
}

func systemConfig(t *testing.T, trim bool) Config {
	return Config{
		Origin:      "discord",
		OutputDir:   t.TempDir(),
		Format:      types.FormatWAV,
		SampleRate:  testRate,
		Channels:    1,
		TrimSilence: trim,
	}
}

func TestSessionTrimsBoundarySilence(t *testing.T) {
	src := newFakeSource(400)
	var seq uint64
	for i := 0; i < 2*blocksPerSecond; i++ {
		src.blocks <- quietBlock(seq, 1)
		seq++
	}
	for i := 0; i < 3*blocksPerSecond; i++ {
		src.blocks <- toneBlock(seq, 1)
		seq++
	}
	for i := 0; i < 2*blocksPerSecond; i++ {
		src.blocks <- quietBlock(seq, 1)
		seq++
	}

	s := New(systemConfig(t, true), src, nil)
	require.NoError(t, s.Start(context.Background()))

	result, err := s.Stop()
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)

	// Seven seconds in, three seconds of audible signal out.
	assert.Equal(t, 3*testRate, wavSampleCount(t, result.Paths[0]))
	assert.Equal(t, types.StateDone, s.Status().State)
}

func TestSessionWithoutTrimKeepsEverything(t *testing.T) {
	src := newFakeSource(120)
	for i := 0; i < 100; i++ {
		src.blocks <- quietBlock(uint64(i), 1)
	}
	s := New(systemConfig(t, false), src, nil)
	require.NoError(t, s.Start(context.Background()))

	result, err := s.Stop()
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.Equal(t, 100*blockFrames, wavSampleCount(t, result.Paths[0]))
}

func TestSessionStopIsIdempotent(t *testing.T) {
	src := newFakeSource(60)
	for i := 0; i < 50; i++ {
		src.blocks <- toneBlock(uint64(i), 1)
	}
	s := New(systemConfig(t, false), src, nil)
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	results := make([]types.Result, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := s.Stop()
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	require.Len(t, results[0].Paths, 1)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])

	// The source was torn down exactly once.
	src.mu.Lock()
	assert.True(t, src.stopped)
	src.mu.Unlock()

	// A stop after completion returns the same result again.
	again, err := s.Stop()
	require.NoError(t, err)
	assert.Equal(t, results[0], again)
}

func TestSessionRejectsDoubleStart(t *testing.T) {
	src := newFakeSource(8)
	s := New(systemConfig(t, false), src, nil)
	require.NoError(t, s.Start(context.Background()))

	err := s.Start(context.Background())
	require.ErrorIs(t, err, types.ErrAlreadyCapturing)
	_, err = s.Stop()
	require.NoError(t, err)
}

func TestSessionMaxDurationStopsCapture(t *testing.T) {
	src := newFakeSource(1024)
	stop := make(chan struct{})
	go func() {
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				if src.send(toneBlock(seq, 1)) {
					seq++
				}
			}
		}
	}()
	defer close(stop)

	cfg := systemConfig(t, false)
	cfg.MaxDuration = 150 * time.Millisecond
	s := New(cfg, src, nil)
	s.pollInterval = 20 * time.Millisecond
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop the session")
	}

	status := s.Status()
	assert.Equal(t, types.StateDone, status.State)
	result, err := s.Stop()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Duration, 150*time.Millisecond)
	assert.Less(t, result.Duration, 2*time.Second)
}

func TestSessionFailsWhenSourceDies(t *testing.T) {
	src := newFakeSource(8)
	src.blocks <- toneBlock(0, 1)
	s := New(systemConfig(t, false), src, nil)
	require.NoError(t, s.Start(context.Background()))

	// The stream ends without a stop request.
	src.mu.Lock()
	src.stopped = true
	close(src.blocks)
	src.mu.Unlock()

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not fail")
	}

	status := s.Status()
	assert.Equal(t, types.StateFailed, status.State)
	_, err := s.Stop()
	require.ErrorIs(t, err, types.ErrDeviceUnavailable)

	// The partial file was removed.
	entries, readErr := os.ReadDir(s.cfg.OutputDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

// fakeTrackSource announces pre-built participant tracks.
type fakeTrackSource struct {
	tracks chan *voice.Track
	closer func()

	mu      sync.Mutex
	stopped bool
}

func (f *fakeTrackSource) Start(context.Context) (<-chan *voice.Track, error) {
	return f.tracks, nil
}

func (f *fakeTrackSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	f.stopped = true
	f.closer()
	close(f.tracks)
}

func TestSessionIsolatesTrackFailure(t *testing.T) {
	good := make(chan audio.Block, 64)
	bad := make(chan audio.Block, 64)
	for i := 0; i < 50; i++ {
		good <- toneBlock(uint64(i), types.VoiceChannels)
	}
	// Mono blocks violate the track's stereo encoder.
	for i := 0; i < 10; i++ {
		bad <- toneBlock(uint64(i), 1)
	}

	bot := &fakeTrackSource{
		tracks: make(chan *voice.Track, 2),
		closer: func() { close(good); close(bad) },
	}
	bot.tracks <- voice.NewTrack(voice.Participant{UserID: "u1", Name: "alice", SSRC: 100}, good)
	bot.tracks <- voice.NewTrack(voice.Participant{UserID: "u2", Name: "bob", SSRC: 200}, bad)

	cfg := Config{
		Origin:    "discord",
		OutputDir: t.TempDir(),
		Format:    types.FormatWAV,
	}
	s := New(cfg, nil, bot)
	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)

	result, err := s.Stop()
	require.NoError(t, err)
	require.Len(t, result.Paths, 1)
	assert.Contains(t, filepath.Base(result.Paths[0]), "alice")
	assert.Equal(t, 50*blockFrames*types.VoiceChannels, wavSampleCount(t, result.Paths[0]))

	status := s.Status()
	require.Len(t, status.Tracks, 2)
	states := map[string]types.TrackState{}
	for _, tr := range status.Tracks {
		states[tr.Label] = tr.State
	}
	assert.Equal(t, types.TrackClosed, states["alice"])
	assert.Equal(t, types.TrackFailed, states["bob"])

	// Only the good track's file remains.
	entries, readErr := os.ReadDir(cfg.OutputDir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func TestBuildFilename(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	assert.Equal(t, "discord-2026-03-14_150926.wav", buildFilename("discord", ts, "", types.FormatWAV))
	assert.Equal(t, "discord-2026-03-14_150926-alice.ogg", buildFilename("discord", ts, "alice", types.FormatOGG))
	assert.Equal(t, "discord-2026-03-14_150926-a-b_c.flac", buildFilename("discord", ts, `a b_c?`, types.FormatFLAC))
}

func TestSanitizeLabel(t *testing.T) {
	assert.Equal(t, "My-Name-2", sanitizeLabel("My Name 2"))
	assert.Equal(t, "recording", sanitizeLabel("///"))
	assert.Equal(t, "ssrc-100", sanitizeLabel("ssrc-100"))
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	first := uniquePath(dir, "discord-2026-03-14_150926.wav")
	require.NoError(t, os.WriteFile(first, nil, 0o644))
	second := uniquePath(dir, "discord-2026-03-14_150926.wav")
	assert.Equal(t, filepath.Join(dir, "discord-2026-03-14_150926-2.wav"), second)
}
