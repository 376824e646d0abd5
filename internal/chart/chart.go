package chart

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alertrouter/internal/clock"
	"alertrouter/internal/config"
	"alertrouter/internal/domain"
)

// maxChartBytes caps the fetched image size.
const maxChartBytes = 4 << 20

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// Request describes the alert a chart is wanted for.
// Params: filled by the orchestrator from one canonical alert.
// Returns: query inputs for the render endpoint.
type Request struct {
	AlertName    string
	GeneratorURL string
	AlertTime    string
	Labels       map[string]string
}

// Generator produces an optional trend chart for one alert.
// Params: source is the alert's _source tag; req the alert descriptor.
// Returns: PNG bytes, or nil for "no chart" — failures are never fatal.
type Generator interface {
	Generate(ctx context.Context, source string, req Request) []byte
}

// HTTPGenerator fetches a rendered PNG from a source-specific endpoint.
// Params: chart config selects the endpoint and query window.
// Returns: thin fetcher; rendering itself belongs to the remote service.
type HTTPGenerator struct {
	cfg    config.ChartConfig
	clk    clock.Clock
	client *http.Client
	log    *slog.Logger
}

// New builds an HTTPGenerator.
// Params: cfg chart settings, clk time source, log destination.
// Returns: ready generator.
func New(cfg config.ChartConfig, clk clock.Clock, log *slog.Logger) *HTTPGenerator {
	return &HTTPGenerator{
		cfg:    cfg,
		clk:    clk,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:    log,
	}
}

// Generate fetches one chart covering the lookback window ending at the
// alert time. Any failure — disabled config, unknown source, transport
// error, non-PNG response — yields nil.
// Params: source tag and alert descriptor.
// Returns: PNG bytes or nil.
func (g *HTTPGenerator) Generate(ctx context.Context, source string, req Request) []byte {
	if !g.cfg.Enabled {
		return nil
	}

	base := g.renderBase(source)
	if base == "" {
		return nil
	}

	endpoint, err := g.buildURL(base, req)
	if err != nil {
		g.log.Debug("chart url build failed", "err", err)
		return nil
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}
	response, err := g.client.Do(request)
	if err != nil {
		g.log.Debug("chart fetch failed", "alertname", req.AlertName, "err", err)
		return nil
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		g.log.Debug("chart fetch returned non-200",
			"alertname", req.AlertName, "status", response.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxChartBytes))
	if err != nil {
		return nil
	}
	if !bytes.HasPrefix(body, pngSignature) {
		g.log.Debug("chart response is not a png", "alertname", req.AlertName)
		return nil
	}
	return body
}

// renderBase picks the render endpoint for one source tag.
// Params: source tag from the alert's _source label.
// Returns: configured base URL or empty when the source has none.
func (g *HTTPGenerator) renderBase(source string) string {
	switch source {
	case domain.SourceGrafana:
		return g.cfg.GrafanaURL
	case domain.SourcePrometheus:
		return g.cfg.PrometheusURL
	default:
		return ""
	}
}

// buildURL attaches the query window and alert identity to the base URL.
// Params: base render URL and alert descriptor.
// Returns: absolute fetch URL or parse error.
func (g *HTTPGenerator) buildURL(base string, req Request) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	to := g.clk.Now()
	if at, parseErr := time.Parse(time.RFC3339, req.AlertTime); parseErr == nil && !at.IsZero() {
		to = at
	}
	from := to.Add(-time.Duration(g.cfg.LookbackMinutes) * time.Minute)

	query := parsed.Query()
	query.Set("alertname", req.AlertName)
	query.Set("from", strconv.FormatInt(from.UnixMilli(), 10))
	query.Set("to", strconv.FormatInt(to.UnixMilli(), 10))
	query.Set("step", g.cfg.Step)
	if req.GeneratorURL != "" {
		query.Set("source", req.GeneratorURL)
	}
	if instance := req.Labels["instance"]; instance != "" {
		query.Set("instance", instance)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
