package normalize

import (
	"encoding/json"
	"regexp"

	"alertrouter/internal/domain"
)

// collectableLabels are keys whose values legitimately differ inside one
// alert group and are gathered into ordered lists instead of being dropped
// from the merged label set.
var collectableLabels = []string{
	"replica",
	"pod",
	"instance",
	"service_name",
	"consumergroup",
	"topic",
	"jenkins_job",
	"device",
	"container",
	"build_number",
	"status",
}

// entityLabels is the priority order for picking the label that identifies
// the entity behind one group member when building the current-value map.
var entityLabels = []string{
	"pod",
	"instance",
	"service_name",
	"consumergroup",
	"topic",
	"jenkins_job",
	"device",
	"container",
	"namespace",
	"name",
	"status",
}

// currentValuePattern extracts the value following a 当前值 marker; the value
// ends at the first whitespace or pipe character.
var currentValuePattern = regexp.MustCompile(`当前值[：:]\s*([^\s|]+)`)

// parsePrometheus converts an Alertmanager payload into canonical alerts.
// Params: doc is the decoded top-level object.
// Returns: one merged alert for a multi-entry group, else one alert per
// entry; empty slice for a missing or malformed alerts field.
func (n *Normalizer) parsePrometheus(doc map[string]json.RawMessage) []domain.Alert {
	raws, ok := decodeAlertList(doc)
	if !ok {
		n.log.Warn("prometheus payload alerts field is not a list")
		return []domain.Alert{}
	}
	if len(raws) == 0 {
		return []domain.Alert{}
	}

	env := decodeEnvelope(doc)
	if len(raws) > 1 && env.GroupKey != "" {
		merged := n.mergeGroup(raws, env)
		n.log.Info("merged prometheus alert group",
			"alerts", len(raws), "group_key", env.GroupKey)
		return []domain.Alert{merged}
	}

	alerts := make([]domain.Alert, 0, len(raws))
	for _, raw := range raws {
		labels := toLabelSet(raw.Labels)
		labels.Set(domain.SourceLabel, domain.SourcePrometheus)
		if env.Receiver != "" {
			labels.Set(domain.ReceiverLabel, env.Receiver)
		}
		alerts = append(alerts, domain.Alert{
			Status:       chain(raw.Status, env.Status, domain.StatusFiring),
			Labels:       labels,
			Annotations:  copyAnnotations(raw.Annotations),
			StartsAt:     raw.StartsAt,
			EndsAt:       raw.EndsAt,
			GeneratorURL: chain(raw.GeneratorURL, env.ExternalURL),
		})
	}
	return alerts
}

// mergeGroup collapses one alert group into a single representative alert.
// Params: raws are the group members in original order; env holds payload
// fallbacks.
// Returns: merged alert carrying common labels, collected label lists, and
// the per-entity current-value map.
func (n *Normalizer) mergeGroup(raws []rawAlert, env rawEnvelope) domain.Alert {
	first := raws[0]

	labels := make(domain.LabelSet, len(first.Labels)+2)
	for key, value := range first.Labels {
		if isCollectable(key) {
			continue
		}
		if labelSharedByAll(raws, key, value) {
			labels.Set(key, value)
		}
	}

	for _, key := range collectableLabels {
		values := collectLabelValues(raws, key)
		if len(values) > 0 {
			labels[key] = domain.LabelValue(values)
		}
	}

	labels.Set(domain.SourceLabel, domain.SourcePrometheus)
	if env.Receiver != "" {
		labels.Set(domain.ReceiverLabel, env.Receiver)
	}

	annotations := copyAnnotations(env.CommonAnnotations)
	if annotations["summary"] == "" && first.Annotations["summary"] != "" {
		annotations["summary"] = first.Annotations["summary"]
	}

	return domain.Alert{
		Status:       chain(env.Status, first.Status, domain.StatusFiring),
		Labels:       labels,
		Annotations:  annotations,
		StartsAt:     first.StartsAt,
		EndsAt:       first.EndsAt,
		GeneratorURL: chain(first.GeneratorURL, env.ExternalURL),
		EntityValues: buildEntityValues(raws),
	}
}

// decodeAlertList decodes the alerts field of one payload.
// Params: doc is the decoded top-level object.
// Returns: entries and false when the field is absent or not a list.
func decodeAlertList(doc map[string]json.RawMessage) ([]rawAlert, bool) {
	raw, ok := doc["alerts"]
	if !ok {
		return nil, false
	}
	var raws []rawAlert
	if err := json.Unmarshal(raw, &raws); err != nil {
		return nil, false
	}
	return raws, true
}

// isCollectable reports whether the key belongs to the collectable set.
// Params: label key.
// Returns: membership flag.
func isCollectable(key string) bool {
	for _, candidate := range collectableLabels {
		if candidate == key {
			return true
		}
	}
	return false
}

// labelSharedByAll reports whether every group member carries key=value.
// Params: group members, label key, and the first member's value.
// Returns: true when the value is identical across all entries.
func labelSharedByAll(raws []rawAlert, key, value string) bool {
	for _, raw := range raws {
		if raw.Labels[key] != value {
			return false
		}
	}
	return true
}

// collectLabelValues gathers de-duplicated values in first-seen order.
// Params: group members and the collectable label key.
// Returns: ordered unique values; empty when no member carries the key.
func collectLabelValues(raws []rawAlert, key string) []string {
	var values []string
	for _, raw := range raws {
		value, ok := raw.Labels[key]
		if !ok {
			continue
		}
		if containsString(values, value) {
			continue
		}
		values = append(values, value)
	}
	return values
}

// buildEntityValues maps each group member's entity to its reported value.
// Params: group members in original order.
// Returns: "label:value" keyed map; nil when no entity yields a value.
//
// For every member the first entityLabels key present picks the entity, and
// the value comes from the 当前值 marker in the summary annotation, falling
// back to description. The first occurrence wins for duplicate entities.
func buildEntityValues(raws []rawAlert) map[string]string {
	var out map[string]string
	for _, raw := range raws {
		entityKey, entityValue := pickEntity(raw.Labels)
		if entityKey == "" || entityValue == "" {
			continue
		}
		unique := entityKey + ":" + entityValue
		if _, seen := out[unique]; seen {
			continue
		}

		value := extractCurrentValue(raw.Annotations["summary"])
		if value == "" {
			value = extractCurrentValue(raw.Annotations["description"])
		}
		if value == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[unique] = value
	}
	return out
}

// pickEntity selects the highest-priority entity label present.
// Params: one member's labels.
// Returns: entity key and value, or empty strings when none apply.
func pickEntity(labels map[string]string) (string, string) {
	for _, key := range entityLabels {
		if value, ok := labels[key]; ok && value != "" {
			return key, value
		}
	}
	return "", ""
}

// extractCurrentValue pulls the value after a 当前值 marker from free text.
// Params: annotation text, may be empty.
// Returns: first match or empty string.
func extractCurrentValue(text string) string {
	if text == "" {
		return ""
	}
	match := currentValuePattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

// containsString reports slice membership.
// Params: haystack and needle.
// Returns: presence flag.
func containsString(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
