package channel

import (
	"alertrouter/internal/config"
	"alertrouter/internal/domain"
)

// Skip reasons reported for channels excluded from a fan-out.
const (
	SkipUnknown            = "unknown channel"
	SkipDisabled           = "channel disabled"
	SkipResolvedSuppressed = "resolved notifications disabled"
)

// Channel is one named delivery destination resolved from config.
// Params: name key plus the static channel body.
// Returns: read-only entry shared by every request.
type Channel struct {
	Name string
	config.ChannelConfig
}

// Table is the immutable channel lookup built once at startup.
// Params: channel map from the loaded config.
// Returns: concurrent-read-safe table, never mutated after load.
type Table struct {
	channels map[string]config.ChannelConfig
}

// NewTable builds a Table.
// Params: channels from the validated config.
// Returns: ready table.
func NewTable(channels map[string]config.ChannelConfig) *Table {
	return &Table{channels: channels}
}

// Resolve looks up one channel and applies enable/resolved policy.
// Params: name is the routed channel name; status the alert status.
// Returns: the channel and an empty reason when deliverable, else a skip
// reason naming why it is excluded.
func (t *Table) Resolve(name, status string) (Channel, string) {
	cfg, ok := t.channels[name]
	if !ok {
		return Channel{}, SkipUnknown
	}
	if !cfg.Enabled {
		return Channel{}, SkipDisabled
	}
	if status == domain.StatusResolved && !cfg.SendResolved {
		return Channel{}, SkipResolvedSuppressed
	}
	return Channel{Name: name, ChannelConfig: cfg}, ""
}

// FilterEnabled keeps the deliverable channels from a routed name list.
// Params: names routed channel names; status alert status.
// Returns: deliverable channels in input order.
func (t *Table) FilterEnabled(names []string, status string) []Channel {
	out := make([]Channel, 0, len(names))
	for _, name := range names {
		if ch, reason := t.Resolve(name, status); reason == "" {
			out = append(out, ch)
		}
	}
	return out
}

// FilterImageCapable keeps deliverable channels that can carry a chart.
// Params: names routed channel names; status alert status.
// Returns: telegram channels with image delivery enabled, in input order.
func (t *Table) FilterImageCapable(names []string, status string) []Channel {
	out := make([]Channel, 0, len(names))
	for _, ch := range t.FilterEnabled(names, status) {
		if ch.Type == config.ChannelTypeTelegram && ch.ImageEnabled {
			out = append(out, ch)
		}
	}
	return out
}
