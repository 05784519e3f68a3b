// Package session orchestrates one recording: it pulls blocks from a
// capture or voice source, fans them into per-track encoders, enforces
// the duration limit and exposes a consistent status snapshot.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/encoder"
	"github.com/jmpijll/discrec/internal/types"
	"github.com/jmpijll/discrec/internal/voice"
)

// BlockSource is a single-stream capture origin. capture.Source
// implements it.
type BlockSource interface {
	Name() string
	Start(ctx context.Context) (<-chan audio.Block, error)
	Stop() error
}

// TrackSource is a multi-participant origin. voice.Bot implements it.
type TrackSource interface {
	Start(ctx context.Context) (<-chan *voice.Track, error)
	Stop()
}

// Config holds the per-session recording parameters.
type Config struct {
	// Origin is the filename prefix, normally "discord".
	Origin string
	// OutputDir receives the finalized files.
	OutputDir string
	Format    types.Format
	// SampleRate and Channels describe single-stream capture audio.
	SampleRate int
	Channels   int
	// TrimSilence gates away leading, trailing and pause silence.
	TrimSilence      bool
	SilenceThreshold float64
	SilenceWindow    time.Duration
	// MaxDuration auto-stops the session; zero means unlimited.
	MaxDuration time.Duration
}

// Session is a single recording run through the state machine
// idle → capturing → stopping → done|failed. A session is single-use;
// the engine creates a fresh one per recording.
type Session struct {
	ID  string
	cfg Config

	source BlockSource
	bot    TrackSource

	// now and pollInterval are fixed in New; tests shorten them.
	now          func() time.Time
	pollInterval time.Duration

	mu        sync.RWMutex
	state     types.SessionState
	startedAt time.Time
	stoppedAt time.Time
	tracks    []*trackRunner
	err       error
	result    types.Result

	meter        *audio.Meter
	feeders      sync.WaitGroup
	shuttingDown bool
	done         chan struct{}
}

// New builds an idle session. Exactly one of source or bot is used,
// selected by which is non-nil; source wins when both are set.
func New(cfg Config, source BlockSource, bot TrackSource) *Session {
	if cfg.Origin == "" {
		cfg.Origin = "discord"
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = types.DefaultSilenceThreshold
	}
	if cfg.SilenceWindow == 0 {
		cfg.SilenceWindow = encoder.DefaultGateWindow
	}
	return &Session{
		ID:           uuid.NewString(),
		cfg:          cfg,
		source:       source,
		bot:          bot,
		now:          time.Now,
		pollInterval: types.WatchdogPollInterval,
		state:        types.StateIdle,
		meter:        audio.NewMeter(),
		done:         make(chan struct{}),
	}
}

// Start begins capture. A session can only be started once; restarting
// in any later state fails with types.ErrAlreadyCapturing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != types.StateIdle {
		s.mu.Unlock()
		return fmt.Errorf("session %s is %s: %w", s.ID, s.state, types.ErrAlreadyCapturing)
	}
	s.state = types.StateCapturing
	s.startedAt = s.now()
	s.mu.Unlock()

	var err error
	switch {
	case s.source != nil:
		err = s.startSystem(ctx)
	case s.bot != nil:
		err = s.startVoice(ctx)
	default:
		err = errors.New("session has no source")
	}
	if err != nil {
		s.mu.Lock()
		s.state = types.StateFailed
		s.err = err
		s.mu.Unlock()
		close(s.done)
		return err
	}

	go s.watchdog(ctx)
	slog.Info("Recording started", "session", s.ID, "format", s.cfg.Format, "output_dir", s.cfg.OutputDir)
	return nil
}

func (s *Session) startSystem(ctx context.Context) error {
	blocks, err := s.source.Start(ctx)
	if err != nil {
		return err
	}
	tr, err := s.openTrack(s.source.Name(), "")
	if err != nil {
		_ = s.source.Stop()
		return err
	}
	s.feeders.Add(1)
	go func() {
		defer s.feeders.Done()
		for b := range blocks {
			tr.enqueue(b)
		}
		tr.closeInput()
		s.sourceEnded(fmt.Errorf("%w: capture stream ended", types.ErrDeviceUnavailable))
	}()
	return nil
}

func (s *Session) startVoice(ctx context.Context) error {
	tracks, err := s.bot.Start(ctx)
	if err != nil {
		return err
	}
	s.feeders.Add(1)
	go func() {
		defer s.feeders.Done()
		var wg sync.WaitGroup
		for vt := range tracks {
			tr, err := s.openTrack(vt.Label(), vt.Label())
			if err != nil {
				slog.Error("Cannot open participant track", "label", vt.Label(), "error", err)
				go func(vt *voice.Track) {
					for range vt.Blocks() {
					}
				}(vt)
				continue
			}
			wg.Add(1)
			go func(vt *voice.Track, tr *trackRunner) {
				defer wg.Done()
				for b := range vt.Blocks() {
					tr.enqueue(b)
				}
				tr.closeInput()
			}(vt, tr)
		}
		wg.Wait()
		s.sourceEnded(fmt.Errorf("%w: voice stream ended", types.ErrConnectionLost))
	}()
	return nil
}

// openTrack creates the encoder chain for one track: format sink, then
// the silence gate when trimming is enabled.
func (s *Session) openTrack(id, label string) (*trackRunner, error) {
	rate, channels := s.cfg.SampleRate, s.cfg.Channels
	if s.bot != nil {
		rate, channels = types.VoiceSampleRate, types.VoiceChannels
	}
	path := uniquePath(s.cfg.OutputDir, buildFilename(s.cfg.Origin, s.now(), label, s.cfg.Format))
	sink, err := encoder.New(s.cfg.Format, path, rate, channels)
	if err != nil {
		return nil, err
	}
	if s.cfg.TrimSilence {
		sink = encoder.NewSilenceGate(sink, s.cfg.SilenceThreshold, s.cfg.SilenceWindow)
	}
	tr := newTrackRunner(id, label, sink, s.meter)

	s.mu.Lock()
	s.tracks = append(s.tracks, tr)
	s.mu.Unlock()
	slog.Info("Track opened", "session", s.ID, "track", id, "path", path)
	return tr, nil
}

// sourceEnded handles the stream closing underneath us. During a
// requested stop this is the normal drain path; mid-capture it is a
// failure.
func (s *Session) sourceEnded(cause error) {
	s.mu.RLock()
	capturing := s.state == types.StateCapturing
	s.mu.RUnlock()
	if !capturing {
		return
	}
	slog.Error("Source ended unexpectedly", "session", s.ID, "error", cause)
	// shutdown waits on the feeders, and sourceEnded runs on the feeder
	// that delivered the close; the terminal sequence needs its own
	// goroutine so that feeder can finish.
	go s.shutdown(cause)
}

// watchdog polls elapsed time against the duration limit.
func (s *Session) watchdog(ctx context.Context) {
	if s.cfg.MaxDuration <= 0 {
		return
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			expired := s.state == types.StateCapturing && s.now().Sub(s.startedAt) >= s.cfg.MaxDuration
			s.mu.RUnlock()
			if expired {
				slog.Info("Max duration reached", "session", s.ID, "limit", s.cfg.MaxDuration)
				s.Stop()
				return
			}
		}
	}
}

// Stop ends the recording and finalizes every track. It is idempotent:
// concurrent and repeated calls all return the same result after the
// first stop completes.
func (s *Session) Stop() (types.Result, error) {
	s.mu.Lock()
	switch s.state {
	case types.StateIdle:
		s.mu.Unlock()
		return types.Result{}, nil
	case types.StateStopping, types.StateDone, types.StateFailed:
		s.mu.Unlock()
		<-s.done
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.result, s.err
	}
	s.state = types.StateStopping
	s.stoppedAt = s.now()
	s.mu.Unlock()

	s.shutdown(nil)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.err
}

// shutdown stops sources, drains feeders and finalizes or aborts the
// tracks. cause nil is a clean stop; non-nil fails the session and
// removes all partial files.
func (s *Session) shutdown(cause error) {
	s.mu.Lock()
	if s.shuttingDown || (s.state != types.StateCapturing && s.state != types.StateStopping) {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.shuttingDown = true
	s.state = types.StateStopping
	if s.stoppedAt.IsZero() {
		s.stoppedAt = s.now()
	}
	s.mu.Unlock()

	if s.source != nil {
		if err := s.source.Stop(); err != nil {
			slog.Warn("Source stop failed", "session", s.ID, "error", err)
		}
	}
	if s.bot != nil {
		s.bot.Stop()
	}
	s.feeders.Wait()

	s.mu.RLock()
	tracks := append([]*trackRunner(nil), s.tracks...)
	duration := s.stoppedAt.Sub(s.startedAt)
	s.mu.RUnlock()

	if cause != nil {
		for _, tr := range tracks {
			tr.abort()
		}
		s.finish(types.StateFailed, types.Result{}, cause)
		return
	}

	var paths []string
	var firstErr error
	for _, tr := range tracks {
		path, err := tr.finalize()
		if err != nil {
			slog.Error("Track finalize failed", "session", s.ID, "track", tr.id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		paths = append(paths, path)
	}

	// One good track is still a successful recording; the session fails
	// only when every track did.
	if len(paths) == 0 && firstErr != nil {
		s.finish(types.StateFailed, types.Result{}, firstErr)
		return
	}
	s.finish(types.StateDone, types.Result{Paths: paths, Duration: duration}, nil)
}

func (s *Session) finish(state types.SessionState, result types.Result, err error) {
	s.mu.Lock()
	s.state = state
	s.result = result
	s.err = err
	s.mu.Unlock()
	close(s.done)
	slog.Info("Recording finished", "session", s.ID, "state", state, "files", len(result.Paths), "duration", result.Duration)
}

// Done closes when the session reaches done or failed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Level returns the current decayed peak level.
func (s *Session) Level() (level, peakHold float64) {
	return s.meter.Level(), s.meter.PeakHold()
}

// Status returns a consistent snapshot of the session and its tracks.
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := types.SessionStatus{
		ID:        s.ID,
		State:     s.state,
		Capturing: s.state == types.StateCapturing,
		Level:     s.meter.Level(),
		PeakHold:  s.meter.PeakHold(),
	}
	switch s.state {
	case types.StateCapturing, types.StateStopping:
		st.Elapsed = s.now().Sub(s.startedAt).Seconds()
	case types.StateDone, types.StateFailed:
		if !s.stoppedAt.IsZero() {
			st.Elapsed = s.stoppedAt.Sub(s.startedAt).Seconds()
		}
	}
	for _, tr := range s.tracks {
		st.Tracks = append(st.Tracks, tr.status())
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}
