package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/jonny/executor-provisioner/internal/domain/port/outbound"
)

// Config holds Slack notifier configuration.
type Config struct {
	BotToken       string
	DefaultChannel string
	Channels       map[string]string // namespace -> channel ID
	// APIURL overrides the Slack API endpoint. Tests point it at a local server.
	APIURL string
}

// Notifier implements outbound.Notifier via the Slack API.
type Notifier struct {
	client *slackapi.Client
	config Config
}

var _ outbound.Notifier = (*Notifier)(nil)

// NewNotifier creates a new Slack Notifier.
func NewNotifier(cfg Config) *Notifier {
	var opts []slackapi.Option
	if cfg.APIURL != "" {
		opts = append(opts, slackapi.OptionAPIURL(cfg.APIURL))
	}
	return &Notifier{
		client: slackapi.New(cfg.BotToken, opts...),
		config: cfg,
	}
}

// channelFor returns the channel to post to for a given namespace.
func (n *Notifier) channelFor(namespace string) string {
	if ch, ok := n.config.Channels[namespace]; ok {
		return ch
	}
	return n.config.DefaultChannel
}

// NotifyPartialExecutor posts a Block Kit card for an executor left without its service.
func (n *Notifier) NotifyPartialExecutor(ctx context.Context, notification outbound.PartialExecutorNotification) error {
	blocks := BuildPartialExecutorBlocks(notification)
	channel := n.channelFor(notification.Namespace)

	_, _, err := n.client.PostMessageContext(ctx, channel,
		slackapi.MsgOptionBlocks(blocks...),
		slackapi.MsgOptionText(fmt.Sprintf("Executor %s/%s partially created", notification.Namespace, notification.Name), false),
	)
	if err != nil {
		return fmt.Errorf("slack NotifyPartialExecutor: %w", err)
	}
	return nil
}

// SendMessage posts a simple text message with an emoji for the level.
func (n *Notifier) SendMessage(ctx context.Context, message string, level outbound.NotificationLevel) error {
	text := fmt.Sprintf("%s %s", levelEmoji(level), message)

	_, _, err := n.client.PostMessageContext(ctx, n.channelFor(""),
		slackapi.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("slack SendMessage: %w", err)
	}
	return nil
}

// levelEmoji maps a notification level to an emoji.
func levelEmoji(level outbound.NotificationLevel) string {
	switch level {
	case outbound.NotificationCritical:
		return ":red_circle:"
	case outbound.NotificationWarning:
		return ":large_yellow_circle:"
	default:
		return ":information_source:"
	}
}
