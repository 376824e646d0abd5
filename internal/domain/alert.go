package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// StatusFiring indicates an active alert notification.
	StatusFiring = "firing"
	// StatusResolved indicates a recovery notification.
	StatusResolved = "resolved"
)

const (
	// SourceLabel is the reserved label key carrying the producing adapter name.
	SourceLabel = "_source"
	// ReceiverLabel is the reserved label key carrying the upstream receiver name.
	ReceiverLabel = "_receiver"

	// SourcePrometheus tags alerts parsed from Prometheus Alertmanager payloads.
	SourcePrometheus = "prometheus"
	// SourceGrafana tags alerts parsed from Grafana Unified Alerting payloads.
	SourceGrafana = "grafana"
	// SourceUnknown tags bare single-alert payloads without a recognizable origin.
	SourceUnknown = "unknown"
)

// ZeroEndsAt is the sentinel end timestamp Alertmanager emits while firing.
const ZeroEndsAt = "0001-01-01T00:00:00Z"

// LabelValue stores one label value as an ordered list.
// Params: one element for plain labels, several for merged-group collected labels.
// Returns: JSON string for one element, JSON array otherwise.
type LabelValue []string

// MarshalJSON encodes single-element values as a plain string.
// Params: none.
// Returns: JSON string or array bytes.
func (v LabelValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// UnmarshalJSON accepts both plain strings and string arrays.
// Params: raw JSON value bytes.
// Returns: decode error for non-string shapes.
func (v *LabelValue) UnmarshalJSON(raw []byte) error {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		*v = LabelValue{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return fmt.Errorf("label value must be string or string array: %w", err)
	}
	*v = LabelValue(many)
	return nil
}

// String flattens the value for matching and display.
// Params: none.
// Returns: the sole element, or elements joined with commas.
func (v LabelValue) String() string {
	if len(v) == 1 {
		return v[0]
	}
	return strings.Join(v, ",")
}

// LabelSet maps label keys to single- or multi-valued labels.
// Params: case-sensitive unique keys.
// Returns: canonical alert label container.
type LabelSet map[string]LabelValue

// Get returns the flattened value for one key.
// Params: label key.
// Returns: flattened value or empty string when absent.
func (s LabelSet) Get(key string) string {
	if v, ok := s[key]; ok {
		return v.String()
	}
	return ""
}

// Has reports whether the key is present.
// Params: label key.
// Returns: presence flag.
func (s LabelSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Set stores one single-valued label.
// Params: label key and plain value.
// Returns: set mutated in place.
func (s LabelSet) Set(key, value string) {
	s[key] = LabelValue{value}
}

// Flatten converts the set into a plain string map for route matching.
// Params: none.
// Returns: new map with multi-valued labels comma-joined.
func (s LabelSet) Flatten() map[string]string {
	out := make(map[string]string, len(s))
	for key, value := range s {
		out[key] = value.String()
	}
	return out
}

// Alert is the canonical normalized alert every downstream stage consumes.
// Params: source-tagged labels, free-form annotations, and source timestamps.
// Returns: immutable unit for dedup, routing, and delivery.
type Alert struct {
	Status       string            `json:"status"`
	Labels       LabelSet          `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint,omitempty"`
	EntityValues map[string]string `json:"_pod_values,omitempty"`
}

// Name returns the alertname label with an "Unknown" fallback.
// Params: none.
// Returns: display name for logs and delivery records.
func (a Alert) Name() string {
	if name := a.Labels.Get("alertname"); name != "" {
		return name
	}
	return "Unknown"
}

// Source returns the _source label value.
// Params: none.
// Returns: producing adapter tag or empty string.
func (a Alert) Source() string {
	return a.Labels.Get(SourceLabel)
}

// MatchLabels builds the label view the router matches against.
// Params: none.
// Returns: flattened labels including _source/_receiver keys.
func (a Alert) MatchLabels() map[string]string {
	return a.Labels.Flatten()
}
