package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jmpijll/discrec/internal/types"
	"github.com/jmpijll/discrec/internal/util"
)

const (
	joinRetries     = 3
	joinBackoffMin  = 1 * time.Second
	joinBackoffMax  = 10 * time.Second
	notifyOnStart   = "🔴 Recording this call."
	notifyOnStopFmt = "⏹️ Recording stopped after %s."
)

// Config holds the Discord connection parameters.
type Config struct {
	Token     string
	GuildID   string
	ChannelID string
	// Notify posts a message in the voice channel's chat when recording
	// starts and stops. Failures to post are logged, never fatal.
	Notify bool
	// AutoStopOnEmpty invokes OnEmpty when the last human participant
	// leaves the channel.
	AutoStopOnEmpty bool
}

// Bot joins a voice channel and feeds its packet stream into a Receiver.
// OnEmpty, when set, fires once the channel holds no human participants.
type Bot struct {
	cfg     Config
	OnEmpty func()

	mu       sync.Mutex
	session  *discordgo.Session
	vc       *discordgo.VoiceConnection
	receiver *Receiver
	started  time.Time
	stopped  bool
}

func NewBot(cfg Config) *Bot {
	return &Bot{cfg: cfg}
}

// Start connects to Discord, joins the configured voice channel muted
// but not deafened, and returns the track announcement channel. Connect
// failures map to types.ErrPermissionDenied (bad token) or
// types.ErrConnectionLost.
func (b *Bot) Start(ctx context.Context) (<-chan *Track, error) {
	session, err := discordgo.New("Bot " + b.cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: creating Discord session: %v", types.ErrPermissionDenied, err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	if err := session.Open(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "authentication") {
			return nil, fmt.Errorf("%w: Discord rejected the bot token: %v", types.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: opening Discord gateway: %v", types.ErrConnectionLost, err)
	}

	vc, err := b.joinWithRetry(ctx, session)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	receiver := newReceiver(func(userID string) string {
		return displayName(session, b.cfg.GuildID, userID)
	})

	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		receiver.setSpeaking(uint32(su.SSRC), su.UserID)
	})
	session.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		b.onVoiceState(s, vs, receiver)
	})

	b.mu.Lock()
	b.session = session
	b.vc = vc
	b.receiver = receiver
	b.started = time.Now()
	b.mu.Unlock()

	go receiver.run(vc.OpusRecv)

	if b.cfg.Notify {
		if _, err := session.ChannelMessageSend(b.cfg.ChannelID, notifyOnStart); err != nil {
			slog.Warn("Failed to post recording notice", "channel_id", b.cfg.ChannelID, "error", err)
		}
	}

	slog.Info("Joined voice channel", "guild_id", b.cfg.GuildID, "channel_id", b.cfg.ChannelID)
	return receiver.Tracks(), nil
}

func (b *Bot) joinWithRetry(ctx context.Context, session *discordgo.Session) (*discordgo.VoiceConnection, error) {
	backoff := util.NewBackoff(joinBackoffMin, joinBackoffMax)
	var lastErr error
	for attempt := 1; attempt <= joinRetries; attempt++ {
		vc, err := session.ChannelVoiceJoin(b.cfg.GuildID, b.cfg.ChannelID, true, false)
		if err == nil {
			return vc, nil
		}
		lastErr = err
		if attempt < joinRetries {
			delay := backoff.Next()
			slog.Warn("Voice join failed, retrying", "attempt", attempt, "delay", delay, "error", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", types.ErrConnectionLost, ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("%w: joining voice channel %s: %v", types.ErrConnectionLost, b.cfg.ChannelID, lastErr)
}

// onVoiceState finalizes tracks of departed participants and fires the
// empty-channel callback.
func (b *Bot) onVoiceState(s *discordgo.Session, vs *discordgo.VoiceStateUpdate, receiver *Receiver) {
	if vs.GuildID != b.cfg.GuildID {
		return
	}
	if s.State.User != nil && vs.UserID == s.State.User.ID {
		return
	}
	left := vs.ChannelID != b.cfg.ChannelID &&
		vs.BeforeUpdate != nil && vs.BeforeUpdate.ChannelID == b.cfg.ChannelID
	if !left {
		return
	}
	receiver.userLeft(vs.UserID)

	if b.cfg.AutoStopOnEmpty && b.OnEmpty != nil && b.channelEmpty(s) {
		slog.Info("Voice channel empty, stopping", "channel_id", b.cfg.ChannelID)
		go b.OnEmpty()
	}
}

func (b *Bot) channelEmpty(s *discordgo.Session) bool {
	guild, err := s.State.Guild(b.cfg.GuildID)
	if err != nil {
		return false
	}
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != b.cfg.ChannelID {
			continue
		}
		if s.State.User != nil && vs.UserID == s.State.User.ID {
			continue
		}
		return false
	}
	return true
}

// Stop leaves the voice channel and closes the session. Idempotent.
func (b *Bot) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	session, vc, receiver, started := b.session, b.vc, b.receiver, b.started
	b.mu.Unlock()

	if b.cfg.Notify && session != nil && !started.IsZero() {
		elapsed := time.Since(started).Round(time.Second)
		if _, err := session.ChannelMessageSend(b.cfg.ChannelID, fmt.Sprintf(notifyOnStopFmt, elapsed)); err != nil {
			slog.Warn("Failed to post stop notice", "channel_id", b.cfg.ChannelID, "error", err)
		}
	}
	if vc != nil {
		if err := vc.Disconnect(); err != nil {
			slog.Warn("Voice disconnect failed", "error", err)
		}
	}
	if receiver != nil {
		receiver.closeAll()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			slog.Warn("Discord session close failed", "error", err)
		}
	}
	slog.Info("Left voice channel", "channel_id", b.cfg.ChannelID)
}

// displayName prefers the guild nickname over the account username.
func displayName(s *discordgo.Session, guildID, userID string) string {
	member, err := s.GuildMember(guildID, userID)
	if err != nil {
		slog.Warn("Member lookup failed", "user_id", userID, "error", err)
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		return member.User.Username
	}
	return ""
}
