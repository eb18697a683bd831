package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"antitrigger/internal/config"
	"antitrigger/internal/model"
)

// DiscordSource reads log messages posted to one monitored channel.
type DiscordSource struct {
	channelID string
	out       chan<- model.RawEvent
	logger    *slog.Logger
}

func NewDiscordSource(channelID string, out chan<- model.RawEvent, logger *slog.Logger) *DiscordSource {
	return &DiscordSource{channelID: channelID, out: out, logger: logger}
}

// StartDiscord registers the message handler on session. The caller owns
// the session and opens it once every handler is in place.
func StartDiscord(ctx context.Context, cfg *config.Manager, session *discordgo.Session, out chan<- model.RawEvent, logger *slog.Logger) *DiscordSource {
	current := cfg.Get().Ingest.Discord
	if !current.Enabled || session == nil {
		if logger != nil {
			logger.Info("discord ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("discord ingest enabled", "channel_id", current.ChannelID)
	}
	src := NewDiscordSource(current.ChannelID, out, logger)
	session.Identify.Intents |= discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}
		src.HandleMessage(ctx, selfID, m.Message)
	})
	return src
}

// HandleMessage forwards one channel message. Our own messages and messages
// from other channels are ignored. Embed titles and descriptions are joined
// in order into a single event; a message without embeds uses its content.
func (d *DiscordSource) HandleMessage(ctx context.Context, selfID string, m *discordgo.Message) bool {
	if m == nil || m.ChannelID != d.channelID {
		return false
	}
	if m.Author != nil && selfID != "" && m.Author.ID == selfID {
		return false
	}
	text := embedText(m.Embeds)
	if text == "" {
		text = m.Content
	}
	if strings.TrimSpace(text) == "" {
		return false
	}
	receivedAt := m.Timestamp.UTC()
	if m.Timestamp.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return SendNonBlocking(ctx, d.out, model.RawEvent{Text: text, ReceivedAt: receivedAt, Source: "discord", DeliveryID: m.ID}, d.logger)
}

func embedText(embeds []*discordgo.MessageEmbed) string {
	var b strings.Builder
	for _, e := range embeds {
		if e == nil {
			continue
		}
		b.WriteString(e.Title)
		b.WriteString(e.Description)
	}
	return b.String()
}
