package normalize

import (
	"encoding/json"
	"log/slog"

	"alertrouter/internal/domain"
)

// rawEnvelope holds the payload-level fields shared by webhook shapes.
// Params: decoded from the top-level JSON object.
// Returns: fallback values for per-alert field chains.
type rawEnvelope struct {
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupKey          string            `json:"groupKey"`
	ExternalURL       string            `json:"externalURL"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
}

// rawAlert is one entry of an inbound alerts array, superset of all sources.
// Params: decoded from one alerts element or the bare top-level document.
// Returns: source-specific view consumed by the adapters.
type rawAlert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     string            `json:"startsAt"`
	EndsAt       string            `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
	Values       map[string]any    `json:"values"`
	ValueString  string            `json:"valueString"`
}

// Normalizer converts arbitrary webhook payloads into canonical alerts.
// Params: log for shape warnings and merge diagnostics.
// Returns: stateless single entry point shared by HTTP and NATS ingest.
type Normalizer struct {
	log *slog.Logger
}

// New builds a Normalizer.
// Params: log destination for adapter diagnostics.
// Returns: ready normalizer.
func New(log *slog.Logger) *Normalizer {
	return &Normalizer{log: log}
}

// Normalize identifies the payload shape and runs the matching adapter.
// Params: body is the raw inbound JSON document.
// Returns: canonical alerts; empty for unparseable or unknown payloads.
func (n *Normalizer) Normalize(body []byte) []domain.Alert {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		n.log.Warn("payload is not a JSON object", "err", err)
		return nil
	}

	format := Identify(doc)
	switch format {
	case FormatPrometheus:
		return n.parsePrometheus(doc)
	case FormatGrafana:
		return n.parseGrafana(doc)
	case FormatSingleAlert:
		return n.parseSingle(doc)
	default:
		n.log.Warn("payload matched no known webhook shape")
		return nil
	}
}

// decodeEnvelope extracts the shared payload-level fallback fields.
// Params: doc is the decoded top-level object.
// Returns: envelope with zero values for absent or malformed fields.
func decodeEnvelope(doc map[string]json.RawMessage) rawEnvelope {
	var env rawEnvelope
	for key, target := range map[string]*string{
		"status":      &env.Status,
		"receiver":    &env.Receiver,
		"groupKey":    &env.GroupKey,
		"externalURL": &env.ExternalURL,
	} {
		if raw, ok := doc[key]; ok {
			_ = json.Unmarshal(raw, target)
		}
	}
	if raw, ok := doc["commonAnnotations"]; ok {
		_ = json.Unmarshal(raw, &env.CommonAnnotations)
	}
	return env
}

// toLabelSet converts plain string labels into the canonical label container.
// Params: labels from one raw alert.
// Returns: new single-valued label set.
func toLabelSet(labels map[string]string) domain.LabelSet {
	out := make(domain.LabelSet, len(labels)+2)
	for key, value := range labels {
		out.Set(key, value)
	}
	return out
}

// copyAnnotations clones an annotation map so adapters never alias input.
// Params: annotations from one raw alert, may be nil.
// Returns: new non-nil map.
func copyAnnotations(annotations map[string]string) map[string]string {
	out := make(map[string]string, len(annotations))
	for key, value := range annotations {
		out[key] = value
	}
	return out
}

// chain returns the first non-empty value.
// Params: candidate values in priority order.
// Returns: first non-empty candidate or empty string.
func chain(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
