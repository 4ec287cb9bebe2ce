package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink posts messages to chat-style webhook URLs. Destinations are
// opaque channel identifiers mapped to URLs in configuration.
type WebhookSink struct {
	urls   map[string]string
	client *http.Client
}

// WebhookConfig holds webhook sink configuration.
type WebhookConfig struct {
	URLs    map[string]string `yaml:"urls"` // destination -> webhook URL
	Timeout time.Duration     `yaml:"timeout,omitempty"`
}

// NewWebhookSink creates a webhook sink. An empty URL map is valid: a
// monitoring-only deployment routes no feeds, so the sink is never asked
// to send.
func NewWebhookSink(config WebhookConfig) *WebhookSink {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &WebhookSink{
		urls:   config.URLs,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Send posts one message to the destination's webhook.
func (s *WebhookSink) Send(ctx context.Context, destination, message string) error {
	url, ok := s.urls[destination]
	if !ok {
		return fmt.Errorf("unknown destination %q", destination)
	}

	body, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", destination, resp.StatusCode)
	}
	return nil
}

// Name returns the sink name.
func (s *WebhookSink) Name() string {
	return "webhook"
}
