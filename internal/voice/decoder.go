package voice

import (
	"fmt"

	opus "gopkg.in/hraban/opus.v2"

	"github.com/jmpijll/discrec/internal/types"
)

// frameDecoder decodes one Opus packet into interleaved PCM. The
// abstraction exists so stream tests can run without libopus.
type frameDecoder interface {
	// Decode writes decoded samples into pcm and returns the number of
	// samples per channel.
	Decode(data []byte, pcm []int16) (int, error)
}

type opusFrameDecoder struct {
	dec *opus.Decoder
}

func newOpusFrameDecoder() (frameDecoder, error) {
	dec, err := opus.NewDecoder(types.VoiceSampleRate, types.VoiceChannels)
	if err != nil {
		return nil, fmt.Errorf("%w: creating Opus decoder: %v", types.ErrEncode, err)
	}
	return &opusFrameDecoder{dec: dec}, nil
}

func (d *opusFrameDecoder) Decode(data []byte, pcm []int16) (int, error) {
	return d.dec.Decode(data, pcm)
}
