package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// ChannelSender is the part of a discordgo session the notifier needs.
type ChannelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts alerts to channels through a bot session. The
// destination is the channel id.
type DiscordNotifier struct {
	session ChannelSender
	limiter *rate.Limiter
}

func NewDiscordNotifier(session ChannelSender, rateLimit time.Duration) *DiscordNotifier {
	return &DiscordNotifier{session: session, limiter: newLimiter(rateLimit)}
}

func (n *DiscordNotifier) Name() string {
	return "discord"
}

func (n *DiscordNotifier) Send(ctx context.Context, channelID, payload, _ string) error {
	if n.session == nil {
		return errors.New("discord session not configured")
	}
	if channelID == "" {
		return errors.New("discord channel id is empty")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := n.session.ChannelMessageSend(channelID, truncate(payload, MaxMessageRunes), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send to %s: %w", channelID, err)
	}
	return nil
}
