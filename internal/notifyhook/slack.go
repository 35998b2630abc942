package notifyhook

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackSender posts to one channel via the Slack Web API, grounded on the
// teacher's internal/notify.Manager.notifySlack — same client, same
// PostMessageContext call, minus the thread-timestamp bookkeeping the
// teacher's bot-reply flow needs and this passive hook does not.
type SlackSender struct {
	client  *slack.Client
	channel string
}

func NewSlackSender(botToken, channel string) *SlackSender {
	return &SlackSender{client: slack.New(botToken), channel: channel}
}

func (s *SlackSender) Send(ctx context.Context, message string) error {
	if s.channel == "" {
		return fmt.Errorf("notifyhook: slack channel not configured")
	}
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(message, false))
	return err
}
