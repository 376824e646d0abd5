package notify

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"alertrouter/internal/config"
	"alertrouter/internal/templatefmt"
)

// RenderContext is the data every message template renders against.
// Params: built once per alert by the orchestrator.
// Returns: read-only template input.
type RenderContext struct {
	Title        string
	Status       string
	Labels       map[string]string
	Annotations  map[string]string
	StartsAt     string
	EndsAt       string
	GeneratorURL string
	Values       map[string]string
}

// defaultTemplateBody is used by channels without a template reference.
const defaultTemplateBody = `{{.Title}}
Status: {{.Status}}
{{- with index .Annotations "summary"}}
Summary: {{.}}
{{- end}}
{{- with index .Annotations "description"}}
Description: {{.}}
{{- end}}
{{- with index .Annotations "当前值"}}
当前值: {{.}}
{{- end}}
{{- range $entity, $value := .Values}}
{{$entity}}: {{$value}}
{{- end}}
Starts: {{fmtTime .StartsAt}}
{{- if and (ne .EndsAt "") (ne .EndsAt "0001-01-01T00:00:00Z")}}
Ends: {{fmtTime .EndsAt}}
{{- end}}`

// Renderer turns one alert context into a channel message body.
// Params: named templates from config plus the built-in default.
// Returns: compiled, immutable renderer shared by every request.
type Renderer struct {
	templates map[string]*template.Template
	fallback  *template.Template
}

// NewRenderer compiles all configured templates once at startup.
// Params: templates config map and the display timezone for fmtTime.
// Returns: renderer or the first compile error.
func NewRenderer(templates map[string]config.TemplateConfig, loc *time.Location) (*Renderer, error) {
	fallback, err := templatefmt.ParseNotificationTemplate("default", defaultTemplateBody, loc)
	if err != nil {
		return nil, fmt.Errorf("compile default template: %w", err)
	}

	compiled := make(map[string]*template.Template, len(templates))
	for name, tpl := range templates {
		parsed, err := templatefmt.ParseNotificationTemplate(name, tpl.Message, loc)
		if err != nil {
			return nil, fmt.Errorf("compile template %q: %w", name, err)
		}
		compiled[name] = parsed
	}

	return &Renderer{templates: compiled, fallback: fallback}, nil
}

// Render produces the message body for one channel.
// Params: templateRef is the channel's template name, empty for the default;
// ctx the alert context.
// Returns: rendered body or a per-channel render error.
func (r *Renderer) Render(templateRef string, ctx RenderContext) (string, error) {
	tpl := r.fallback
	if templateRef != "" {
		named, ok := r.templates[templateRef]
		if !ok {
			return "", fmt.Errorf("template %q is not configured", templateRef)
		}
		tpl = named
	}

	var out strings.Builder
	if err := tpl.Execute(&out, ctx); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out.String(), nil
}
