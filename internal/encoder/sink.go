// Package encoder provides streaming audio file sinks (WAV, FLAC, Ogg
// Opus) behind a single write/finalize contract, plus the silence gate
// decorator that trims silence at recording boundaries.
package encoder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

// Sentinel errors for sink operations.
var (
	ErrClosed            = errors.New("sink is closed")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Sink consumes PCM blocks and produces one finished audio file.
//
// WriteBlock rejects blocks whose channel count differs from the one the
// sink was opened with. Finalize is idempotent: the second call is a
// no-op returning the same path. Abort removes the partial file so no
// plausible-looking but corrupt file is left behind. A final block
// shorter than the codec's nominal frame size must not corrupt output.
type Sink interface {
	WriteBlock(b audio.Block) error
	Finalize() (string, error)
	Abort() error
	Path() string
}

// New opens a sink of the given format writing to path. The parent
// directory is created if missing. Sample rate and channel count are
// fixed for the life of the sink.
func New(format types.Format, path string, sampleRate, channels int) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	switch format {
	case types.FormatWAV:
		return newWAVSink(path, sampleRate, channels)
	case types.FormatFLAC:
		return newFLACSink(path, sampleRate, channels)
	case types.FormatOGG:
		return newOpusSink(path, sampleRate, channels)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// checkBlock validates an incoming block against the sink's fixed layout.
func checkBlock(b audio.Block, channels int) error {
	if b.Channels != channels {
		return fmt.Errorf("%w: got %d channels, sink opened with %d",
			types.ErrEncode, b.Channels, channels)
	}
	return nil
}

// removeFile deletes a partial file, tolerating it never having been created.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove partial file: %w", err)
	}
	return nil
}
