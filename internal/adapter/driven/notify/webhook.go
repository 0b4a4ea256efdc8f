package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

// WebhookSink posts notifications as JSON to a URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a new webhook sink. client may be nil.
func NewWebhookSink(url string, client *http.Client) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook URL required")
	}
	if client == nil {
		client = &http.Client{Timeout: sinkTimeout}
	}
	return &WebhookSink{url: url, client: client}, nil
}

// Name returns the sink identifier.
func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the notification as JSON to the configured URL.
func (s *WebhookSink) Send(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(newPayload(n))
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "actionwatch")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
