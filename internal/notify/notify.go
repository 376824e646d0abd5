package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"alertrouter/internal/config"
)

// Sender delivers one rendered message body to its channel endpoint.
// Params: context, body text, and an optional PNG chart.
// Returns: transport error when delivery fails.
type Sender interface {
	Send(ctx context.Context, body string, image []byte) error
}

// Dispatcher holds one prepared sender per configured channel.
// Params: senders built once from the validated channel table.
// Returns: concurrent-safe fan-out entry point for the orchestrator.
type Dispatcher struct {
	senders map[string]Sender
}

// NewDispatcher builds transport senders for every configured channel.
// Params: channels from the loaded config and a log destination.
// Returns: dispatcher with one sender per channel.
func NewDispatcher(channels map[string]config.ChannelConfig, log *slog.Logger) *Dispatcher {
	senders := make(map[string]Sender, len(channels))
	for name, cfg := range channels {
		switch cfg.Type {
		case config.ChannelTypeTelegram:
			senders[name] = NewTelegramSender(name, cfg, log)
		case config.ChannelTypeWebhook:
			senders[name] = NewWebhookSender(name, cfg, log)
		}
	}
	return &Dispatcher{senders: senders}
}

// Send delivers one message to one channel.
// Params: channel name, rendered body, and optional chart bytes.
// Returns: error when the channel has no sender or the transport fails.
func (d *Dispatcher) Send(ctx context.Context, channel, body string, image []byte) error {
	sender, ok := d.senders[channel]
	if !ok {
		return fmt.Errorf("channel %q has no configured sender", channel)
	}
	return sender.Send(ctx, body, image)
}

// newHTTPClient builds the transport client for one channel.
// Params: proxyURL optional forward proxy; timeout request deadline.
// Returns: client or proxy URL parse error.
func newHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	if strings.TrimSpace(proxyURL) == "" {
		return client, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url %q: %w", proxyURL, err)
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	return client, nil
}

// unexpectedStatusError formats a non-2xx response with its trimmed body.
// Params: prefix label and the HTTP response.
// Returns: status-only or status+body error.
func unexpectedStatusError(prefix string, response *http.Response) error {
	rawBody, readErr := io.ReadAll(io.LimitReader(response.Body, 4<<10))
	if readErr != nil {
		return fmt.Errorf("%s status=%d (read body error: %w)", prefix, response.StatusCode, readErr)
	}
	trimmed := strings.TrimSpace(string(rawBody))
	if trimmed == "" {
		return fmt.Errorf("%s status=%d", prefix, response.StatusCode)
	}
	return fmt.Errorf("%s status=%d body=%s", prefix, response.StatusCode, trimmed)
}

// truncateRunes caps text to limit runes.
// Params: text and rune limit.
// Returns: text unchanged when short enough, else a prefix of limit runes.
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// pngSignature is the fixed 8-byte PNG file header.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// IsPNG reports whether data is a plausible PNG chart.
// Params: raw image bytes.
// Returns: true for the PNG magic header with a sane minimum size; anything
// else is sent as plain text to avoid a guaranteed API rejection.
func IsPNG(data []byte) bool {
	return len(data) >= 100 && bytes.HasPrefix(data, pngSignature)
}
