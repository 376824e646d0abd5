package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"alertrouter/internal/channel"
	"alertrouter/internal/chart"
	"alertrouter/internal/config"
	"alertrouter/internal/domain"
	"alertrouter/internal/normalize"
	"alertrouter/internal/notify"
	"alertrouter/internal/routing"
)

type sentMessage struct {
	Channel string
	Body    string
	Image   []byte
}

type stubSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]error
}

func (s *stubSender) Send(_ context.Context, channelName, body string, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[channelName]; ok {
		return err
	}
	s.sent = append(s.sent, sentMessage{Channel: channelName, Body: body, Image: image})
	return nil
}

type stubCharts struct {
	image []byte
	calls int
}

func (c *stubCharts) Generate(_ context.Context, _ string, _ chart.Request) []byte {
	c.calls++
	return c.image
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func buildService(t *testing.T, rules []config.RoutingRule, channels map[string]config.ChannelConfig, sender *stubSender, charts chart.Generator) *AlertService {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	renderer, err := notify.NewRenderer(nil, time.UTC)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	dedup := routing.NewDedupCache(
		config.JenkinsDedupConfig{Enabled: true, TTLSeconds: 900, ClearOnResolved: true},
		fixedClock{now: time.Unix(1_700_000_000, 0)}, log)
	if charts == nil {
		charts = &stubCharts{}
	}
	return NewAlertService(AlertServiceDeps{
		Normalizer:  normalize.New(log),
		Dedup:       dedup,
		Router:      routing.NewRouter(rules, routing.NewMatcher(log), log),
		Channels:    channel.NewTable(channels),
		Renderer:    renderer,
		Sender:      sender,
		Charts:      charts,
		TitlePrefix: "[ALERT]",
		Log:         log,
	})
}

func webhookChannel() config.ChannelConfig {
	return config.ChannelConfig{
		Type: config.ChannelTypeWebhook, Enabled: true, SendResolved: true,
		WebhookURL: "http://127.0.0.1:9/hook",
	}
}

const groupedPayload = `{
	"groupKey": "g",
	"status": "firing",
	"receiver": "r",
	"commonLabels": {"alertname": "HighCPU"},
	"alerts": [
		{"labels": {"alertname": "HighCPU", "pod": "p1"},
		 "annotations": {"summary": "x|当前值：80%"},
		 "startsAt": "2024-05-01T06:30:00Z"},
		{"labels": {"alertname": "HighCPU", "pod": "p2"}}
	]
}`

func TestProcessEndToEndMergedGroup(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	service := buildService(t,
		[]config.RoutingRule{{Match: map[string]string{"alertname": "HighCPU"}, SendTo: []string{"ops"}}},
		map[string]config.ChannelConfig{"ops": webhookChannel()},
		sender, nil)

	result := service.Process(context.Background(), []byte(groupedPayload))
	if !result.OK {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Sent) != 1 {
		t.Fatalf("expected one record for one merged alert, got %+v", result.Sent)
	}
	record := result.Sent[0]
	if record.Alert != "HighCPU" || record.Channel != "ops" || record.Status != "sent" || record.AlertStatus != "firing" {
		t.Fatalf("record = %+v", record)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent = %+v", sender.sent)
	}
	body := sender.sent[0].Body
	for _, fragment := range []string{"[ALERT] HighCPU", "Status: firing", "pod:p1: 80%"} {
		if !strings.Contains(body, fragment) {
			t.Fatalf("body missing %q:\n%s", fragment, body)
		}
	}
}

func TestProcessUnparseablePayload(t *testing.T) {
	t.Parallel()

	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"ops"}}},
		map[string]config.ChannelConfig{"ops": webhookChannel()},
		&stubSender{}, nil)

	result := service.Process(context.Background(), []byte(`{"nothing": true}`))
	if result.OK || result.Error == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestProcessSoftFailureIsolation(t *testing.T) {
	t.Parallel()

	sender := &stubSender{failFor: map[string]error{"bad": errors.New("connection refused")}}
	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"bad", "ops"}}},
		map[string]config.ChannelConfig{"bad": webhookChannel(), "ops": webhookChannel()},
		sender, nil)

	result := service.Process(context.Background(), []byte(`{"labels": {"alertname": "X"}}`))
	if !result.OK || len(result.Sent) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Sent[0].Error != "connection refused" {
		t.Fatalf("failed record = %+v", result.Sent[0])
	}
	if result.Sent[1].Status != "sent" {
		t.Fatalf("sibling channel must still deliver: %+v", result.Sent[1])
	}
}

func TestProcessChannelOutcomes(t *testing.T) {
	t.Parallel()

	disabled := webhookChannel()
	disabled.Enabled = false
	noResolved := webhookChannel()
	noResolved.SendResolved = false

	sender := &stubSender{}
	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"ghost", "off", "quiet", "ops"}}},
		map[string]config.ChannelConfig{"off": disabled, "quiet": noResolved, "ops": webhookChannel()},
		sender, nil)

	result := service.Process(context.Background(),
		[]byte(`{"status": "resolved", "labels": {"alertname": "X"}}`))
	if !result.OK || len(result.Sent) != 4 {
		t.Fatalf("result = %+v", result)
	}

	byChannel := map[string]domain.DeliveryRecord{}
	for _, record := range result.Sent {
		byChannel[record.Channel] = record
	}
	if byChannel["ghost"].Error == "" {
		t.Fatalf("unknown channel must be an error record: %+v", byChannel["ghost"])
	}
	if byChannel["off"].Skipped != channel.SkipDisabled {
		t.Fatalf("disabled record = %+v", byChannel["off"])
	}
	if byChannel["quiet"].Skipped != channel.SkipResolvedSuppressed {
		t.Fatalf("resolved-suppressed record = %+v", byChannel["quiet"])
	}
	if byChannel["ops"].Status != "sent" {
		t.Fatalf("deliverable record = %+v", byChannel["ops"])
	}
}

func TestProcessDedupSkip(t *testing.T) {
	t.Parallel()

	sender := &stubSender{}
	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"ops"}}},
		map[string]config.ChannelConfig{"ops": webhookChannel()},
		sender, nil)

	payload := `{
		"status": "firing",
		"labels": {
			"alertname": "BuildFailed",
			"jenkins_job": "deploy-api",
			"check_commitID": "abc123",
			"gitBranch": "main",
			"build_number": "42"
		}
	}`

	first := service.Process(context.Background(), []byte(payload))
	if len(first.Sent) != 1 || first.Sent[0].Status != "sent" {
		t.Fatalf("first delivery = %+v", first)
	}
	second := service.Process(context.Background(), []byte(payload))
	if len(second.Sent) != 1 || second.Sent[0].Skipped == "" {
		t.Fatalf("duplicate must be skipped: %+v", second)
	}
	if second.Sent[0].Channel != "" {
		t.Fatalf("dedup skip is alert-level, not channel-level: %+v", second.Sent[0])
	}
}

func TestProcessChartOnlyForImageChannels(t *testing.T) {
	t.Parallel()

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 200)...)
	charts := &stubCharts{image: png}

	imageChannel := config.ChannelConfig{
		Type: config.ChannelTypeTelegram, Enabled: true, SendResolved: true,
		ImageEnabled: true, BotToken: "t", ChatID: "-1",
	}
	sender := &stubSender{}
	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"charts", "ops"}}},
		map[string]config.ChannelConfig{"charts": imageChannel, "ops": webhookChannel()},
		sender, charts)

	result := service.Process(context.Background(), []byte(groupedPayload))
	if !result.OK || len(result.Sent) != 2 {
		t.Fatalf("result = %+v", result)
	}
	if charts.calls != 1 {
		t.Fatalf("chart generator calls = %d", charts.calls)
	}

	for _, msg := range sender.sent {
		switch msg.Channel {
		case "charts":
			if msg.Image == nil {
				t.Fatalf("image channel did not receive the chart")
			}
		case "ops":
			if msg.Image != nil {
				t.Fatalf("text channel must not receive the chart")
			}
		}
	}
}

func TestProcessNoImageChannelSkipsChartFetch(t *testing.T) {
	t.Parallel()

	charts := &stubCharts{image: []byte("png")}
	sender := &stubSender{}
	service := buildService(t,
		[]config.RoutingRule{{Default: true, SendTo: []string{"ops"}}},
		map[string]config.ChannelConfig{"ops": webhookChannel()},
		sender, charts)

	service.Process(context.Background(), []byte(groupedPayload))
	if charts.calls != 0 {
		t.Fatalf("chart generator must not run without image-capable channels, calls = %d", charts.calls)
	}
}
