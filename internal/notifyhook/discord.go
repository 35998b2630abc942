package notifyhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender posts to a Discord incoming webhook, grounded on the
// teacher's internal/notify.DiscordBotNotifier.sendWebhookMessage — the
// webhook branch only, since this hook never needs the Bot API's
// thread/reaction features.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *DiscordSender) Send(ctx context.Context, message string) error {
	if d.webhookURL == "" {
		return fmt.Errorf("notifyhook: discord webhook url not configured")
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("notifyhook: marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifyhook: build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifyhook: send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notifyhook: discord webhook returned status %s", resp.Status)
	}
	return nil
}
