package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts every event as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// webhookPayload is the wire shape of a webhook delivery.
type webhookPayload struct {
	Topic     string      `json:"topic"`
	Event     interface{} `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewWebhook creates a webhook notifier for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Publish implements Notifier.
func (w *Webhook) Publish(ctx context.Context, topic string, event interface{}) error {
	body, err := json.Marshal(webhookPayload{
		Topic:     topic,
		Event:     event,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*Webhook)(nil)
