package encoder

import (
	"fmt"
	"os"
	"sync"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

// flacBlockSize is the fixed number of frames per FLAC frame. The final
// frame may be shorter.
const flacBlockSize = 4096

// flacSink streams block-based lossless compression. Incoming PCM is
// buffered to flacBlockSize frames; Finalize flushes the remainder as a
// short final frame.
type flacSink struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	enc        *flac.Encoder
	sampleRate int
	channels   int
	pending    []int16 // interleaved samples not yet encoded
	closed     bool
}

func newFLACSink(path string, sampleRate, channels int) (Sink, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: flac sink supports 1 or 2 channels, got %d",
			types.ErrEncode, channels)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create flac file: %w", err)
	}

	info := &meta.StreamInfo{
		BlockSizeMin:  16,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     uint8(channels),
		BitsPerSample: 16,
	}
	enc, err := flac.NewEncoder(f, info)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create flac encoder: %w", err)
	}

	return &flacSink{
		path:       path,
		file:       f,
		enc:        enc,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (s *flacSink) WriteBlock(b audio.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := checkBlock(b, s.channels); err != nil {
		return err
	}

	s.pending = append(s.pending, b.Samples...)
	for len(s.pending) >= flacBlockSize*s.channels {
		if err := s.encodeFrame(s.pending[:flacBlockSize*s.channels]); err != nil {
			return err
		}
		s.pending = s.pending[flacBlockSize*s.channels:]
	}
	return nil
}

// encodeFrame writes one FLAC frame of interleaved samples using verbatim
// subframes. The caller holds the lock.
func (s *flacSink) encodeFrame(interleaved []int16) error {
	nframes := len(interleaved) / s.channels

	chans := frame.ChannelsMono
	if s.channels == 2 {
		chans = frame.ChannelsLR
	}

	subframes := make([]*frame.Subframe, s.channels)
	for ch := 0; ch < s.channels; ch++ {
		samples := make([]int32, nframes)
		for i := 0; i < nframes; i++ {
			samples[i] = int32(interleaved[i*s.channels+ch])
		}
		subframes[ch] = &frame.Subframe{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  nframes,
		}
	}

	fr := &frame.Frame{
		Header: frame.Header{
			HasFixedBlockSize: false,
			BlockSize:         uint16(nframes),
			SampleRate:        uint32(s.sampleRate),
			Channels:          chans,
			BitsPerSample:     16,
		},
		Subframes: subframes,
	}
	if err := s.enc.WriteFrame(fr); err != nil {
		return fmt.Errorf("write flac frame: %w", err)
	}
	return nil
}

func (s *flacSink) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.path, nil
	}
	s.closed = true

	// Flush the remaining partial frame.
	if len(s.pending) > 0 {
		if err := s.encodeFrame(s.pending); err != nil {
			return "", err
		}
		s.pending = nil
	}

	if err := s.enc.Close(); err != nil {
		return "", fmt.Errorf("finalize flac: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return "", fmt.Errorf("close flac file: %w", err)
	}
	return s.path, nil
}

func (s *flacSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.file.Close()
	return removeFile(s.path)
}

func (s *flacSink) Path() string { return s.path }
