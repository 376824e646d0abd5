package templatefmt

import (
	"encoding/json"
	"strings"
	"text/template"
	"time"
)

// zeroTimestamp is the sentinel end time emitted while an alert is still firing.
const zeroTimestamp = "0001-01-01T00:00:00Z"

// timestampLayouts are the accepted inbound timestamp shapes, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FuncMap returns shared notification template helpers.
// Params: loc is the display timezone for fmtTime.
// Returns: deterministic helper map used by config validation and runtime rendering.
func FuncMap(loc *time.Location) template.FuncMap {
	return template.FuncMap{
		"fmtTime": func(value string) string { return FormatTime(value, loc) },
		"json":    MarshalJSON,
	}
}

// ParseNotificationTemplate parses one notification template with shared helpers.
// Params: template name, body, and display timezone.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string, loc *time.Location) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap(loc)).Option("missingkey=error").Parse(body)
}

// FormatTime prettifies one source timestamp for display.
// Params: value is an RFC3339-ish timestamp; loc is the display timezone.
// Returns: "2006-01-02 15:04:05" in loc, or the input unchanged when it is
// empty, the zero sentinel, or unparseable.
func FormatTime(value string, loc *time.Location) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || trimmed == zeroTimestamp {
		return value
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		return parsed.In(loc).Format("2006-01-02 15:04:05")
	}
	return value
}

// MarshalJSON renders a value into a JSON string for template embedding.
// Params: template value of any type.
// Returns: marshaled JSON string or "null" on marshal failure.
func MarshalJSON(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(encoded)
}
