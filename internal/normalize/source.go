package normalize

import "encoding/json"

// SourceFormat is the closed set of recognized inbound payload shapes.
// Params: assigned by Identify from top-level keys only.
// Returns: adapter selector for Normalize.
type SourceFormat string

const (
	// FormatPrometheus is an Alertmanager webhook payload.
	FormatPrometheus SourceFormat = "prometheus"
	// FormatGrafana is a Grafana Unified Alerting webhook payload.
	FormatGrafana SourceFormat = "grafana"
	// FormatSingleAlert is a bare alert document with top-level labels/annotations.
	FormatSingleAlert SourceFormat = "single"
	// FormatUnknown is anything that matched no shape heuristic.
	FormatUnknown SourceFormat = "unknown"
)

// Identify classifies an inbound payload by its top-level keys.
// Params: doc is the decoded top-level JSON object.
// Returns: first matching format in fixed decision order.
//
// Grafana and Alertmanager share an alerts array but differ in auxiliary
// top-level fields, so Grafana-exclusive markers are checked first.
func Identify(doc map[string]json.RawMessage) SourceFormat {
	_, hasOrgID := doc["orgId"]
	if hasOrgID {
		return FormatGrafana
	}

	version, hasVersion := stringField(doc, "version")
	_, hasState := doc["state"]
	_, hasTitle := doc["title"]
	if version == "1" && (hasState || hasTitle) {
		return FormatGrafana
	}

	_, hasAlerts := doc["alerts"]
	_, hasGroupKey := doc["groupKey"]
	if hasAlerts && ((hasVersion && version != "1") || hasGroupKey) {
		return FormatPrometheus
	}

	_, hasLabels := doc["labels"]
	_, hasAnnotations := doc["annotations"]
	if hasLabels || hasAnnotations {
		return FormatSingleAlert
	}

	return FormatUnknown
}

// stringField decodes one top-level field as a JSON string.
// Params: doc and the field key.
// Returns: decoded value and whether the key was present as a string.
func stringField(doc map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := doc[key]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", true
	}
	return value, true
}
