package voice

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmpijll/discrec/internal/audio"
	"github.com/jmpijll/discrec/internal/types"
)

// fakeDecoder writes the first payload byte as a constant sample value
// across a full frame.
type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte, pcm []int16) (int, error) {
	val := int16(data[0])
	for i := 0; i < types.VoiceFrameSize*types.VoiceChannels; i++ {
		pcm[i] = val
	}
	return types.VoiceFrameSize, nil
}

// flakyDecoder fails on the 0xFF marker byte and otherwise behaves
// like fakeDecoder.
type flakyDecoder struct{}

func (flakyDecoder) Decode(data []byte, pcm []int16) (int, error) {
	if data[0] == 0xFF {
		return 0, errors.New("corrupted packet")
	}
	return fakeDecoder{}.Decode(data, pcm)
}

func newTestReceiver(resolve nameResolver) *Receiver {
	r := newReceiver(resolve)
	r.newDecoder = func() (frameDecoder, error) { return fakeDecoder{}, nil }
	return r
}

func packet(ssrc uint32, ts uint32, val byte) *discordgo.Packet {
	return &discordgo.Packet{SSRC: ssrc, Timestamp: ts, Opus: []byte{val, 0, 0}}
}

func collectTrack(t *testing.T, tracks <-chan *Track) *Track {
	t.Helper()
	select {
	case tr := <-tracks:
		require.NotNil(t, tr)
		return tr
	case <-time.After(time.Second):
		t.Fatal("no track announced")
		return nil
	}
}

func drainBlocks(t *testing.T, tr *Track) []audio.Block {
	t.Helper()
	var blocks []audio.Block
	for {
		select {
		case b, ok := <-tr.Blocks():
			if !ok {
				return blocks
			}
			blocks = append(blocks, b)
		case <-time.After(time.Second):
			t.Fatal("track blocks not closed")
		}
	}
}

func TestReceiverAnnouncesTrackPerSSRC(t *testing.T) {
	r := newTestReceiver(nil)
	packets := make(chan *discordgo.Packet, 8)
	packets <- packet(100, 960, 7)
	packets <- packet(100, 1920, 7)
	packets <- packet(200, 960, 9)
	close(packets)
	r.run(packets)

	first := collectTrack(t, r.Tracks())
	second := collectTrack(t, r.Tracks())

	assert.Equal(t, uint32(100), first.Participant.SSRC)
	assert.Equal(t, uint32(200), second.Participant.SSRC)
	assert.Equal(t, "ssrc-100", first.Label())

	assert.Len(t, drainBlocks(t, first), 2)
	assert.Len(t, drainBlocks(t, second), 1)

	_, open := <-r.Tracks()
	assert.False(t, open, "tracks channel should close after run returns")
}

func TestReceiverResolvesNames(t *testing.T) {
	r := newTestReceiver(func(userID string) string {
		require.Equal(t, "u1", userID)
		return "alice"
	})
	r.setSpeaking(100, "u1")

	packets := make(chan *discordgo.Packet, 1)
	packets <- packet(100, 960, 1)
	close(packets)
	r.run(packets)

	tr := collectTrack(t, r.Tracks())
	assert.Equal(t, "u1", tr.Participant.UserID)
	assert.Equal(t, "alice", tr.Label())
}

func TestStreamFillsTimestampGaps(t *testing.T) {
	r := newTestReceiver(nil)
	packets := make(chan *discordgo.Packet, 2)
	packets <- packet(100, 960, 5)
	// Two frames missing between the packets.
	packets <- packet(100, 960+3*types.VoiceFrameSize, 5)
	close(packets)
	r.run(packets)

	tr := collectTrack(t, r.Tracks())
	blocks := drainBlocks(t, tr)
	require.Len(t, blocks, 4)
	assert.EqualValues(t, 5, blocks[0].Samples[0])
	assert.Zero(t, blocks[1].Samples[0])
	assert.Zero(t, blocks[2].Samples[0])
	assert.EqualValues(t, 5, blocks[3].Samples[0])
}

func TestStreamCapsGapFill(t *testing.T) {
	r := newTestReceiver(nil)
	packets := make(chan *discordgo.Packet, 2)
	packets <- packet(100, 960, 5)
	// A ten-minute pause must not produce ten minutes of silence.
	pause := uint32(10 * 60 * 50 * types.VoiceFrameSize)
	packets <- packet(100, 960+pause, 5)
	close(packets)
	r.run(packets)

	tr := collectTrack(t, r.Tracks())
	blocks := drainBlocks(t, tr)
	assert.Len(t, blocks, 2+maxGapFrames)
}

func TestDecodeFailureStaysOnOneTrack(t *testing.T) {
	r := newTestReceiver(nil)
	r.newDecoder = func() (frameDecoder, error) { return flakyDecoder{}, nil }

	packets := make(chan *discordgo.Packet, 8)
	packets <- packet(100, 960, 1)
	packets <- packet(100, 960+types.VoiceFrameSize, 0xFF)
	packets <- packet(100, 960+2*types.VoiceFrameSize, 1)
	packets <- packet(200, 960, 2)
	packets <- packet(200, 960+types.VoiceFrameSize, 2)
	packets <- packet(200, 960+2*types.VoiceFrameSize, 2)
	close(packets)
	r.run(packets)

	first := collectTrack(t, r.Tracks())
	second := collectTrack(t, r.Tracks())

	// The undecodable frame is skipped and its slot backfilled as
	// silence when the next good packet arrives.
	blocks := drainBlocks(t, first)
	require.Len(t, blocks, 3)
	assert.EqualValues(t, 1, blocks[0].Samples[0])
	assert.Zero(t, blocks[1].Samples[0])
	assert.EqualValues(t, 1, blocks[2].Samples[0])

	// The sibling participant delivers every block.
	sibling := drainBlocks(t, second)
	require.Len(t, sibling, 3)
	for _, b := range sibling {
		assert.EqualValues(t, 2, b.Samples[0])
	}
}

func TestUserLeftClosesOnlyTheirTrack(t *testing.T) {
	r := newTestReceiver(nil)
	r.setSpeaking(100, "u1")
	r.setSpeaking(200, "u2")

	done := make(chan struct{})
	packets := make(chan *discordgo.Packet)
	go func() {
		r.run(packets)
		close(done)
	}()
	packets <- packet(100, 960, 1)
	packets <- packet(200, 960, 2)

	first := collectTrack(t, r.Tracks())
	second := collectTrack(t, r.Tracks())

	r.userLeft("u1")
	assert.Len(t, drainBlocks(t, first), 1)

	// The other participant keeps streaming.
	packets <- packet(200, 960+types.VoiceFrameSize, 2)
	close(packets)
	<-done
	assert.Len(t, drainBlocks(t, second), 2)
}

func TestReturningUserGetsFreshTrack(t *testing.T) {
	r := newTestReceiver(nil)
	r.setSpeaking(100, "u1")

	done := make(chan struct{})
	packets := make(chan *discordgo.Packet)
	go func() {
		r.run(packets)
		close(done)
	}()
	packets <- packet(100, 960, 1)
	first := collectTrack(t, r.Tracks())

	r.userLeft("u1")
	drainBlocks(t, first)

	// Rejoin arrives with a new SSRC.
	r.setSpeaking(300, "u1")
	packets <- packet(300, 960, 3)
	close(packets)
	<-done

	second := collectTrack(t, r.Tracks())
	assert.Equal(t, uint32(300), second.Participant.SSRC)
	assert.Len(t, drainBlocks(t, second), 1)
}

func TestCloseAllIsIdempotent(t *testing.T) {
	r := newTestReceiver(nil)
	r.closeAll()
	r.closeAll()
	_, open := <-r.Tracks()
	assert.False(t, open)
}
