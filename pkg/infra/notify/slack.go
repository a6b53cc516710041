package notify

import (
	"context"
	"fmt"

	"github.com/m-mizutani/ctxlog"
	"github.com/slack-go/slack"
	"github.com/visagekit/blendstream/pkg/domain/interfaces"
	"github.com/visagekit/blendstream/pkg/domain/types"
)

type slackNotifier struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlack creates a Notifier that posts job failures to a Slack incoming
// webhook. An empty webhook URL yields a no-op notifier.
func NewSlack(webhookURL string) interfaces.Notifier {
	if webhookURL == "" {
		return &nopNotifier{}
	}
	return &slackNotifier{
		webhookURL: webhookURL,
		post:       slack.PostWebhookContext,
	}
}

// NotifyJobFailure posts a failure message. Delivery errors are logged, never
// propagated; notification must not fail a request.
func (n *slackNotifier) NotifyJobFailure(ctx context.Context, jobID string, jobErr error) {
	logger := ctxlog.From(ctx)

	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf(":rotating_light: %s stream job `%s` failed: %v",
			types.ServiceName, jobID, jobErr),
	}
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		logger.Error("Failed to post Slack notification",
			"job_id", jobID,
			"error", err,
		)
		return
	}
	logger.Debug("Posted Slack failure notification", "job_id", jobID)
}

type nopNotifier struct{}

func (n *nopNotifier) NotifyJobFailure(ctx context.Context, jobID string, err error) {}
