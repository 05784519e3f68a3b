package encoder

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jmpijll/discrec/internal/audio"
)

// wavSink writes uncompressed PCM. The encoder writes a provisional
// header up front and patches the RIFF chunk sizes on Close, once the
// true byte count is known.
type wavSink struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	enc        *wav.Encoder
	sampleRate int
	channels   int
	closed     bool
}

func newWAVSink(path string, sampleRate, channels int) (Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}

	return &wavSink{
		path:       path,
		file:       f,
		enc:        wav.NewEncoder(f, sampleRate, 16, channels, 1),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

func (s *wavSink) WriteBlock(b audio.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := checkBlock(b, s.channels); err != nil {
		return err
	}

	data := make([]int, len(b.Samples))
	for i, v := range b.Samples {
		data[i] = int(v)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: s.channels, SampleRate: s.sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("write wav samples: %w", err)
	}
	return nil
}

func (s *wavSink) Finalize() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.path, nil
	}
	s.closed = true

	if err := s.enc.Close(); err != nil {
		return "", fmt.Errorf("finalize wav: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return "", fmt.Errorf("close wav file: %w", err)
	}
	return s.path, nil
}

func (s *wavSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.file.Close()
	return removeFile(s.path)
}

func (s *wavSink) Path() string { return s.path }
