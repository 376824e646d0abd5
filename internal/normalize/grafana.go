package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"alertrouter/internal/domain"
)

// CurrentValueAnnotation is the synthesized annotation key carrying the
// numeric reading behind a Grafana alert.
const CurrentValueAnnotation = "当前值"

// valueStringPattern extracts the B-query reading from Grafana's valueString
// rendering when the structured values map is unavailable.
var valueStringPattern = regexp.MustCompile(`var='B' labels=\{.*?\} value=(\d+)`)

// parseGrafana converts a Grafana Unified Alerting payload into canonical
// alerts, one per entry; Grafana already delivers one notification object per
// rule state, so no group-merge applies.
// Params: doc is the decoded top-level object.
// Returns: alerts with synthesized current-value annotations; empty slice
// for a missing or malformed alerts field.
func (n *Normalizer) parseGrafana(doc map[string]json.RawMessage) []domain.Alert {
	raws, ok := decodeAlertList(doc)
	if !ok {
		n.log.Warn("grafana payload alerts field is not a list")
		return []domain.Alert{}
	}

	env := decodeEnvelope(doc)
	alerts := make([]domain.Alert, 0, len(raws))
	for _, raw := range raws {
		labels := toLabelSet(raw.Labels)
		labels.Set(domain.SourceLabel, domain.SourceGrafana)

		annotations := copyAnnotations(raw.Annotations)
		if value := grafanaCurrentValue(raw); value != "" {
			annotations[CurrentValueAnnotation] = value
		}

		alerts = append(alerts, domain.Alert{
			Status:       chain(raw.Status, env.Status, domain.StatusFiring),
			Labels:       labels,
			Annotations:  annotations,
			StartsAt:     raw.StartsAt,
			EndsAt:       raw.EndsAt,
			GeneratorURL: chain(raw.GeneratorURL, env.ExternalURL),
			Fingerprint:  raw.Fingerprint,
		})
	}
	return alerts
}

// grafanaCurrentValue derives the current reading for one Grafana alert.
// Params: raw alert entry.
// Returns: values.B when present, else the valueString extraction, else "".
func grafanaCurrentValue(raw rawAlert) string {
	if value, ok := raw.Values["B"]; ok {
		return formatValue(value)
	}
	match := valueStringPattern.FindStringSubmatch(raw.ValueString)
	if match == nil {
		return ""
	}
	return match[1]
}

// formatValue renders one decoded JSON value as display text.
// Params: value from the values map.
// Returns: compact string form.
func formatValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", typed)
	}
}
