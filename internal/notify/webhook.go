package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"alertrouter/internal/config"
)

const webhookTimeout = 10 * time.Second

// WebhookSender posts the rendered body to one configured HTTP endpoint.
// Params: endpoint URL and optional proxy from the channel config.
// Returns: generic webhook channel sender; charts are ignored.
type WebhookSender struct {
	name    string
	url     string
	client  *http.Client
	log     *slog.Logger
	initErr error
}

// NewWebhookSender builds the HTTP client for one webhook channel.
// Params: channel name, static channel config, and log destination.
// Returns: sender carrying any init error for later reporting.
func NewWebhookSender(name string, cfg config.ChannelConfig, log *slog.Logger) *WebhookSender {
	sender := &WebhookSender{
		name: name,
		url:  cfg.WebhookURL,
		log:  log,
	}
	client, err := newHTTPClient(cfg.ProxyURL, webhookTimeout)
	if err != nil {
		sender.initErr = fmt.Errorf("webhook channel %q: %w", name, err)
		return sender
	}
	sender.client = client
	return sender
}

// Send posts the body, as JSON when it is valid JSON and raw text otherwise.
// Params: context, rendered body, and ignored chart bytes.
// Returns: transport error or non-2xx status error.
func (s *WebhookSender) Send(ctx context.Context, body string, _ []byte) error {
	if s.initErr != nil {
		return s.initErr
	}

	contentType := "text/plain; charset=utf-8"
	payload := body
	if strings.TrimSpace(body) == "" {
		contentType = "application/json"
		payload = "{}"
	} else if json.Valid([]byte(body)) {
		contentType = "application/json"
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)

	s.log.Debug("posting webhook message", "channel", s.name, "url", s.url)
	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return unexpectedStatusError("webhook", response)
	}
	return nil
}
