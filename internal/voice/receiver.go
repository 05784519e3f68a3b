// Package voice joins a Discord voice channel as a bot and demultiplexes
// the incoming Opus stream into one PCM track per speaking participant.
package voice

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/jmpijll/discrec/internal/audio"
)

// trackQueueSize bounds announced-but-unclaimed tracks.
const trackQueueSize = 16

// Participant identifies one speaker in the voice channel.
type Participant struct {
	UserID string
	Name   string
	SSRC   uint32
}

// Track is one participant's PCM stream. Blocks is closed when the
// participant leaves the channel or the receiver shuts down; a track is
// never reopened, a returning participant gets a fresh one.
type Track struct {
	Participant Participant
	blocks      <-chan audio.Block
}

// NewTrack wraps an existing block stream as a Track. The receiver
// builds its own tracks; this is for alternative track producers.
func NewTrack(p Participant, blocks <-chan audio.Block) *Track {
	return &Track{Participant: p, blocks: blocks}
}

// Blocks returns the track's PCM stream.
func (t *Track) Blocks() <-chan audio.Block { return t.blocks }

// Label returns the participant identifier used in filenames.
func (t *Track) Label() string {
	if t.Participant.Name != "" {
		return t.Participant.Name
	}
	return fmt.Sprintf("ssrc-%d", t.Participant.SSRC)
}

// nameResolver maps a Discord user ID to a display name. Empty results
// are allowed; the track label falls back to the SSRC.
type nameResolver func(userID string) string

// Receiver demultiplexes voice packets by SSRC into per-participant
// streams and announces each new stream as a Track. It is driven by the
// bot but holds no Discord state itself, so tests feed it synthetic
// packets directly.
type Receiver struct {
	resolve    nameResolver
	newDecoder func() (frameDecoder, error)

	mu      sync.Mutex
	streams map[uint32]*stream
	userOf  map[uint32]string
	closed  bool

	tracks chan *Track
}

func newReceiver(resolve nameResolver) *Receiver {
	return &Receiver{
		resolve:    resolve,
		newDecoder: newOpusFrameDecoder,
		streams:    make(map[uint32]*stream),
		userOf:     make(map[uint32]string),
		tracks:     make(chan *Track, trackQueueSize),
	}
}

// Tracks announces one Track per participant who produces audio. The
// channel is closed when the receiver shuts down.
func (r *Receiver) Tracks() <-chan *Track { return r.tracks }

// run demultiplexes packets until the source channel closes. The bot
// runs this against the voice connection's receive channel.
func (r *Receiver) run(packets <-chan *discordgo.Packet) {
	for p := range packets {
		if p == nil || len(p.Opus) == 0 {
			continue
		}
		r.dispatch(p)
	}
	r.closeAll()
}

func (r *Receiver) dispatch(p *discordgo.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	st, ok := r.streams[p.SSRC]
	if !ok {
		dec, err := r.newDecoder()
		if err != nil {
			slog.Error("Cannot start participant stream", "ssrc", p.SSRC, "error", err)
			return
		}
		st = newStream(p.SSRC, dec)
		r.streams[p.SSRC] = st

		participant := Participant{SSRC: p.SSRC, UserID: r.userOf[p.SSRC]}
		if participant.UserID != "" && r.resolve != nil {
			participant.Name = r.resolve(participant.UserID)
		}
		track := &Track{Participant: participant, blocks: st.blocks}
		select {
		case r.tracks <- track:
			slog.Info("Participant track opened", "ssrc", p.SSRC, "user_id", participant.UserID, "label", track.Label())
		default:
			slog.Warn("Track announcement dropped, queue full", "ssrc", p.SSRC)
		}
	}
	st.push(p)
}

// setSpeaking records the SSRC to user mapping from a speaking update.
// Discord sends these before the first packet of a participant.
func (r *Receiver) setSpeaking(ssrc uint32, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userOf[ssrc] = userID
}

// userLeft finalizes the streams of a departed participant.
func (r *Receiver) userLeft(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ssrc, id := range r.userOf {
		if id != userID {
			continue
		}
		if st, ok := r.streams[ssrc]; ok {
			st.close()
			delete(r.streams, ssrc)
			slog.Info("Participant track closed", "ssrc", ssrc, "user_id", userID)
		}
		delete(r.userOf, ssrc)
	}
}

// closeAll finalizes every stream and the track channel. Safe to call
// more than once.
func (r *Receiver) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for ssrc, st := range r.streams {
		st.close()
		delete(r.streams, ssrc)
	}
	close(r.tracks)
}
