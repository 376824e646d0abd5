package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"alertrouter/internal/domain"
)

// receivedNotification captures one delivery seen by the stub webhook channel.
type receivedNotification struct {
	ContentType string
	Body        string
}

// startWebhookReceiver runs a stub channel endpoint recording every delivery.
// Params: test handle.
// Returns: receiver base URL and accessor for recorded notifications.
func startWebhookReceiver(t *testing.T) (string, func() []receivedNotification) {
	t.Helper()

	var mu sync.Mutex
	var received []receivedNotification
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		body, _ := io.ReadAll(request.Body)
		mu.Lock()
		received = append(received, receivedNotification{
			ContentType: request.Header.Get("Content-Type"),
			Body:        string(body),
		})
		mu.Unlock()
		writer.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	return server.URL, func() []receivedNotification {
		mu.Lock()
		defer mu.Unlock()
		return append([]receivedNotification(nil), received...)
	}
}

// writeRouterConfig renders one file config routing everything to a webhook channel.
// Params: test handle, HTTP port, and channel endpoint URL.
// Returns: absolute config file path.
func writeRouterConfig(t *testing.T, port int, receiverURL string) string {
	t.Helper()

	cfg := fmt.Sprintf(`
[service]
name = "alertrouter"

[log.console]
enabled = true
level = "error"
format = "line"

[ingest.http]
listen = "127.0.0.1:%d"
health_path = "/healthz"
ready_path = "/readyz"
webhook_path = "/webhook"
max_body_bytes = 1048576

[ingest.nats]
enabled = false

[defaults]
title_prefix = "[ALERT]"
display_timezone = "UTC"

[[routing]]
default = true
send_to = ["ops"]

[channel.ops]
type = "webhook"
webhook_url = "%s"
`, port, receiverURL)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestServiceSmokeHealthReadyAndWebhook(t *testing.T) {
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	receiverURL, notifications := startWebhookReceiver(t)

	service := newServiceFromConfig(t, writeRouterConfig(t, port, receiverURL))
	cancel, done := runService(t, service)
	defer cancel()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitReady(t, port)

	resp, err := http.Get(baseURL + "/healthz")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.StatusCode)
	}

	payload := []byte(`{
		"groupKey": "gk",
		"status": "firing",
		"receiver": "web",
		"externalURL": "http://am.local",
		"alerts": [{
			"status": "firing",
			"labels": {"alertname": "DiskFull", "instance": "node-1"},
			"annotations": {"summary": "disk almost full"},
			"startsAt": "2024-05-01T06:30:00Z"
		}]
	}`)
	resp, err = http.Post(baseURL+"/webhook", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	responseBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected webhook 200, got %d: %s", resp.StatusCode, responseBody)
	}

	var result domain.WebhookResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	if !result.OK || len(result.Sent) != 1 {
		t.Fatalf("webhook result = %+v", result)
	}
	record := result.Sent[0]
	if record.Alert != "DiskFull" || record.Channel != "ops" || record.Status != "sent" {
		t.Fatalf("delivery record = %+v", record)
	}

	waitFor(t, 4*time.Second, func() bool { return len(notifications()) == 1 })
	delivered := notifications()[0]
	if delivered.ContentType != "text/plain; charset=utf-8" {
		t.Fatalf("delivered content type = %q", delivered.ContentType)
	}
	for _, fragment := range []string{"[ALERT] DiskFull", "Status: firing", "disk almost full"} {
		if !strings.Contains(delivered.Body, fragment) {
			t.Fatalf("delivered body missing %q:\n%s", fragment, delivered.Body)
		}
	}

	cancel()
	waitServiceStop(t, done)
}

func TestServiceWebhookRejectsUnknownPayload(t *testing.T) {
	port, err := freePort()
	if err != nil {
		t.Fatalf("free port: %v", err)
	}
	receiverURL, notifications := startWebhookReceiver(t)

	service := newServiceFromConfig(t, writeRouterConfig(t, port, receiverURL))
	cancel, done := runService(t, service)
	defer cancel()
	waitReady(t, port)

	resp, err := http.Post(
		fmt.Sprintf("http://127.0.0.1:%d/webhook", port),
		"application/json",
		strings.NewReader(`{"unrelated": "document"}`),
	)
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	responseBody, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unrecognized payload must still answer 200, got %d", resp.StatusCode)
	}

	var result domain.WebhookResult
	if err := json.Unmarshal(responseBody, &result); err != nil {
		t.Fatalf("decode webhook response: %v", err)
	}
	if result.OK || result.Error == "" {
		t.Fatalf("webhook result = %+v", result)
	}
	if len(notifications()) != 0 {
		t.Fatalf("no channel delivery expected, got %+v", notifications())
	}

	cancel()
	waitServiceStop(t, done)
}
