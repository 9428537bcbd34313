// Package notify tells people that regeneration triggers have fired.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/contextd/internal/trigger"
)

// Notifier is told about triggers that fired for a project.
type Notifier interface {
	TriggersFired(ctx context.Context, projectID string, fired []trigger.Definition) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) TriggersFired(context.Context, string, []trigger.Definition) error { return nil }

// LogNotifier writes fired triggers to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) TriggersFired(_ context.Context, projectID string, fired []trigger.Definition) error {
	ids := make([]string, len(fired))
	for i, d := range fired {
		ids[i] = d.ID
	}
	n.logger.Info().
		Str("project_id", projectID).
		Strs("triggers", ids).
		Msg("regeneration triggers ready")
	return nil
}

// SlackAPI is the minimal Slack API surface needed to post a message.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts fired triggers to a Slack channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
	logger  zerolog.Logger
}

// NewSlackNotifier creates a notifier posting to channel through api.
func NewSlackNotifier(api SlackAPI, channel string, logger zerolog.Logger) *SlackNotifier {
	return &SlackNotifier{
		api:     api,
		channel: channel,
		logger:  logger.With().Str("component", "notify.slack").Logger(),
	}
}

// NewSlackNotifierFromToken creates a SlackNotifier with a bot token.
func NewSlackNotifierFromToken(token, channel string, logger zerolog.Logger) *SlackNotifier {
	return NewSlackNotifier(slack.New(token), channel, logger)
}

func (n *SlackNotifier) TriggersFired(ctx context.Context, projectID string, fired []trigger.Definition) error {
	if len(fired) == 0 {
		return nil
	}
	text := FormatMessage(projectID, fired)
	_, ts, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("posting trigger notification: %w", err)
	}
	n.logger.Debug().Str("project_id", projectID).Str("ts", ts).Msg("trigger notification posted")
	return nil
}

// FormatMessage renders the text sent for a batch of fired triggers.
func FormatMessage(projectID string, fired []trigger.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Project %s has new context ready for regeneration:\n", projectID)
	for _, d := range fired {
		icon := d.Icon
		if icon == "" {
			icon = "•"
		}
		fmt.Fprintf(&b, "%s *%s*: %d %s reached. %s\n", icon, d.Name, d.Threshold, strings.ReplaceAll(string(d.Metric), "_", " "), d.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
