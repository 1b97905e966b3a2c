package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNoWebhook is returned when no Slack webhook URL is configured.
var ErrNoWebhook = errors.New("SLACK_WEBHOOK_URL not set")

const defaultPublishTimeout = 15 * time.Second

// Publisher delivers one rendered digest.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

// SlackPublisher posts to a Slack incoming webhook.
type SlackPublisher struct {
	webhookURL string
	client     *http.Client
}

func NewSlackPublisher(webhookURL string, timeout time.Duration) (*SlackPublisher, error) {
	if webhookURL == "" {
		return nil, ErrNoWebhook
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &SlackPublisher{webhookURL: webhookURL, client: &http.Client{Timeout: timeout}}, nil
}

// Publish sends {"text": text}. Any non-2xx response is an error.
func (p *SlackPublisher) Publish(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
