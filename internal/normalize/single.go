package normalize

import (
	"encoding/json"

	"alertrouter/internal/domain"
)

// parseSingle converts a bare alert document into one canonical alert.
// Params: doc carries labels/annotations directly at the top level.
// Returns: exactly one alert; the only path allowed to tag _source=unknown,
// signaling that no source-specific enrichment was possible.
func (n *Normalizer) parseSingle(doc map[string]json.RawMessage) []domain.Alert {
	var raw rawAlert
	for key, target := range map[string]any{
		"status":       &raw.Status,
		"labels":       &raw.Labels,
		"annotations":  &raw.Annotations,
		"startsAt":     &raw.StartsAt,
		"endsAt":       &raw.EndsAt,
		"generatorURL": &raw.GeneratorURL,
	} {
		if body, ok := doc[key]; ok {
			_ = json.Unmarshal(body, target)
		}
	}

	labels := toLabelSet(raw.Labels)
	if !labels.Has(domain.SourceLabel) {
		labels.Set(domain.SourceLabel, domain.SourceUnknown)
	}

	return []domain.Alert{{
		Status:       chain(raw.Status, domain.StatusFiring),
		Labels:       labels,
		Annotations:  copyAnnotations(raw.Annotations),
		StartsAt:     raw.StartsAt,
		EndsAt:       raw.EndsAt,
		GeneratorURL: raw.GeneratorURL,
	}}
}
