package channel

import (
	"testing"

	"alertrouter/internal/config"
	"alertrouter/internal/domain"
)

func testTable() *Table {
	return NewTable(map[string]config.ChannelConfig{
		"ops": {
			Type: config.ChannelTypeWebhook, Enabled: true, SendResolved: true,
			WebhookURL: "http://127.0.0.1:9/hook",
		},
		"quiet": {
			Type: config.ChannelTypeTelegram, Enabled: true, SendResolved: false,
			BotToken: "t", ChatID: "-1",
		},
		"off": {
			Type: config.ChannelTypeWebhook, Enabled: false, SendResolved: true,
			WebhookURL: "http://127.0.0.1:9/hook",
		},
		"charts": {
			Type: config.ChannelTypeTelegram, Enabled: true, SendResolved: true,
			ImageEnabled: true, BotToken: "t", ChatID: "-2",
		},
	})
}

func TestResolveSkipReasons(t *testing.T) {
	t.Parallel()

	table := testTable()
	cases := []struct {
		name    string
		channel string
		status  string
		reason  string
	}{
		{"deliverable", "ops", domain.StatusFiring, ""},
		{"unknown", "missing", domain.StatusFiring, SkipUnknown},
		{"disabled", "off", domain.StatusFiring, SkipDisabled},
		{"resolved suppressed", "quiet", domain.StatusResolved, SkipResolvedSuppressed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, reason := table.Resolve(tc.channel, tc.status)
			if reason != tc.reason {
				t.Fatalf("reason = %q, want %q", reason, tc.reason)
			}
		})
	}
}

func TestSendResolvedBoundary(t *testing.T) {
	t.Parallel()

	table := testTable()
	// send_resolved=false excludes only resolved; firing passes regardless.
	if _, reason := table.Resolve("quiet", domain.StatusFiring); reason != "" {
		t.Fatalf("firing should pass a send_resolved=false channel, got %q", reason)
	}
	if _, reason := table.Resolve("quiet", domain.StatusResolved); reason != SkipResolvedSuppressed {
		t.Fatalf("resolved should be suppressed, got %q", reason)
	}
}

func TestFilterEnabledKeepsOrder(t *testing.T) {
	t.Parallel()

	got := testTable().FilterEnabled([]string{"charts", "off", "ops", "missing"}, domain.StatusFiring)
	if len(got) != 2 || got[0].Name != "charts" || got[1].Name != "ops" {
		t.Fatalf("filtered = %v", got)
	}
}

func TestFilterImageCapable(t *testing.T) {
	t.Parallel()

	got := testTable().FilterImageCapable([]string{"ops", "quiet", "charts"}, domain.StatusFiring)
	if len(got) != 1 || got[0].Name != "charts" {
		t.Fatalf("image-capable = %v", got)
	}
}
