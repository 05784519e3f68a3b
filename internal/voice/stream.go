package voice

import (
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

const (
	// packetQueueSize bounds undecoded packets per participant. At 20ms
	// per packet this is about 1.3 seconds of audio.
	packetQueueSize = 64

	// maxGapFrames caps silence insertion for a timestamp jump. Jumps
	// beyond one second are treated as a pause, not packet loss.
	maxGapFrames = 50
)

// stream decodes one participant's packet sequence into PCM blocks.
// Gaps in the RTP timestamp line are filled with silent frames so the
// track's wall-clock shape survives Discord's discontinuous sending.
type stream struct {
	ssrc    uint32
	dec     frameDecoder
	packets chan *discordgo.Packet
	blocks  chan audio.Block

	lastTimestamp uint32
	primed        bool
	seq           uint64
}

func newStream(ssrc uint32, dec frameDecoder) *stream {
	s := &stream{
		ssrc:    ssrc,
		dec:     dec,
		packets: make(chan *discordgo.Packet, packetQueueSize),
		blocks:  make(chan audio.Block, packetQueueSize),
	}
	go s.run()
	return s
}

// push hands a packet to the decode goroutine. A full queue drops the
// packet; one participant's stalled track must not stall the demux loop
// for everyone else.
func (s *stream) push(p *discordgo.Packet) {
	select {
	case s.packets <- p:
	default:
		slog.Warn("Voice packet dropped, decode queue full", "ssrc", s.ssrc)
	}
}

// close stops intake. The decode goroutine drains what is queued, then
// closes the block channel.
func (s *stream) close() {
	close(s.packets)
}

func (s *stream) run() {
	defer close(s.blocks)
	for p := range s.packets {
		s.fillGap(p.Timestamp)
		pcm := make([]int16, types.VoiceFrameSize*types.VoiceChannels)
		n, err := s.dec.Decode(p.Opus, pcm)
		if err != nil {
			slog.Warn("Opus decode failed", "ssrc", s.ssrc, "error", err)
			continue
		}
		s.emit(pcm[:n*types.VoiceChannels])
		s.lastTimestamp = p.Timestamp
		s.primed = true
	}
}

// fillGap emits silent frames for missing timestamps between the last
// decoded packet and ts. Unsigned subtraction handles wraparound.
func (s *stream) fillGap(ts uint32) {
	if !s.primed {
		return
	}
	delta := ts - s.lastTimestamp
	if delta <= types.VoiceFrameSize {
		return
	}
	missing := int(delta/types.VoiceFrameSize) - 1
	if missing > maxGapFrames {
		missing = maxGapFrames
	}
	for i := 0; i < missing; i++ {
		b := audio.SilentBlock(types.VoiceFrameSize, types.VoiceSampleRate, types.VoiceChannels, s.seq, time.Now())
		s.seq++
		s.blocks <- b
	}
}

func (s *stream) emit(samples []int16) {
	s.blocks <- audio.Block{
		Samples:    samples,
		SampleRate: types.VoiceSampleRate,
		Channels:   types.VoiceChannels,
		Seq:        s.seq,
		Time:       time.Now(),
	}
	s.seq++
}
