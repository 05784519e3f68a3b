package encoder

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"gopkg.in/hraban/opus.v2"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

const (
	// opusFrameSize is the number of samples per channel in one 20 ms frame.
	opusFrameSize = types.VoiceFrameSize
	// opusBitrate is the fixed speech-profile bitrate in bits per second.
	opusBitrate = 32000
	// opusMaxPacket is the encode output buffer size.
	opusMaxPacket = 4000
)

// opusSink writes lossy Ogg Opus at a fixed speech bitrate. PCM is
// buffered to 20 ms frames; Finalize zero-pads the final partial frame
// per the codec's framing rules.
type opusSink struct {
	mu         sync.Mutex
	path       string
	enc        *opus.Encoder
	ogg        *oggwriter.OggWriter
	sampleRate int
	channels   int
	pending    []int16
	timestamp  uint32 // RTP timestamp, drives Ogg granule positions
	seq        uint16
	closed     bool
}

func newOpusSink(path string, sampleRate, channels int) (Sink, error) {
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: opus sink supports 1 or 2 channels, got %d",
			types.ErrEncode, channels)
	}

	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}

	ogg, err := oggwriter.New(path, uint32(sampleRate), uint16(channels))
	if err != nil {
		return nil, fmt.Errorf("create ogg file: %w", err)
	}

	return &opusSink{
		path:       path,
		enc:        enc,
		ogg:        ogg,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (s *opusSink) WriteBlock(b audio.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := checkBlock(b, s.channels); err != nil {
		return err
	}

	s.pending = append(s.pending, b.Samples...)
	frame := opusFrameSize * s.channels
	for len(s.pending) >= frame {
		if err := s.encodeFrame(s.pending[:frame]); err != nil {
			return err
		}
		s.pending = s.pending[frame:]
	}
	return nil
}

// encodeFrame compresses one full 20 ms frame and appends it to the Ogg
// stream. The caller holds the lock.
func (s *opusSink) encodeFrame(pcm []int16) error {
	buf := make([]byte, opusMaxPacket)
	n, err := s.enc.Encode(pcm, buf)
	if err != nil {
		return fmt.Errorf("%w: opus encode: %v", types.ErrEncode, err)
	}

	s.timestamp += opusFrameSize
	s.seq++
	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
		},
		Payload: buf[:n],
	}
	if err := s.ogg.WriteRTP(packet); err != nil {
		return fmt.Errorf("write ogg page: %w", err)
	}
	return nil
}

func (s *opusSink) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.path, nil
	}
	s.closed = true

	// Zero-pad the trailing partial frame to a full 20 ms.
	if len(s.pending) > 0 {
		frame := make([]int16, opusFrameSize*s.channels)
		copy(frame, s.pending)
		s.pending = nil
		if err := s.encodeFrame(frame); err != nil {
			return "", err
		}
	}

	if err := s.ogg.Close(); err != nil {
		return "", fmt.Errorf("finalize ogg: %w", err)
	}
	return s.path, nil
}

func (s *opusSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.ogg.Close()
	return removeFile(s.path)
}

func (s *opusSink) Path() string { return s.path }
