package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

var eventEmoji = map[Kind]string{
	ApprovalNeeded:     ":hourglass_flowing_sand:",
	ApprovalReceived:   ":white_check_mark:",
	ApprovalRejected:   ":x:",
	Deployed:           ":rocket:",
	RegressionDetected: ":warning:",
	Rollback:           ":leftwards_arrow_with_hook:",
	RollbackComplete:   ":leftwards_arrow_with_hook:",
}

var eventLabel = map[Kind]string{
	ApprovalNeeded:     "Approval requested",
	ApprovalReceived:   "Approval received",
	ApprovalRejected:   "Approval rejected",
	Deployed:           "Deployment went live",
	RegressionDetected: "Regression detected",
	Rollback:           "Rollback initiated",
	RollbackComplete:   "Rollback complete",
}

// buildBlocks renders an Event as Slack Block Kit blocks, generalizing the
// teacher's pkg/slack/message.go builder from session notifications to
// release-engineering events.
func buildBlocks(ev Event) []goslack.Block {
	emoji := eventEmoji[ev.Kind]
	if emoji == "" {
		emoji = ":bell:"
	}
	label := eventLabel[ev.Kind]
	if label == "" {
		label = string(ev.Kind)
	}

	text := fmt.Sprintf("%s *%s*\nAgent: `%s`", emoji, label, ev.AgentID)
	if ev.VersionID != "" {
		text += fmt.Sprintf("\nVersion: `%s`", ev.VersionID)
	}
	if ev.DeploymentID != "" {
		text += fmt.Sprintf("\nDeployment: `%s`", ev.DeploymentID)
	}
	if ev.Severity != "" {
		text += fmt.Sprintf("\nSeverity: `%s`", ev.Severity)
	}
	if ev.Reason != "" {
		text += fmt.Sprintf("\nReason: %s", ev.Reason)
	}

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// SlackSink posts events to a Slack incoming webhook. Nil-safe: a nil
// *SlackSink's Send is a no-op, matching the teacher's pkg/slack.Service
// nil-receiver contract.
type SlackSink struct {
	webhookURL string
	logger     *slog.Logger
}

// NewSlackSink returns nil if webhookURL is empty, so callers can register
// it unconditionally and the gateway simply never calls a nil sink function.
func NewSlackSink(webhookURL string) *SlackSink {
	if webhookURL == "" {
		return nil
	}
	return &SlackSink{
		webhookURL: webhookURL,
		logger:     slog.Default().With("component", "notify-slack-sink"),
	}
}

// Send implements Sink. Errors are logged, never returned: delivery failures
// must never fail the originating core operation (spec.md §4.H).
func (s *SlackSink) Send(ctx context.Context, ev Event) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := &goslack.WebhookMessage{Blocks: &goslack.Blocks{BlockSet: buildBlocks(ev)}}
	if err := goslack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		s.logger.Error("failed to deliver slack notification", "kind", ev.Kind, "agent_id", ev.AgentID, "error", err)
	}
}
