package app

import (
	"context"
	"log/slog"
	"strings"

	"alertrouter/internal/channel"
	"alertrouter/internal/chart"
	"alertrouter/internal/domain"
	"alertrouter/internal/normalize"
	"alertrouter/internal/notify"
	"alertrouter/internal/routing"
)

// ChannelSender fans one rendered message out to one channel.
// Params: channel name, body text, and optional chart bytes.
// Returns: per-channel delivery error.
type ChannelSender interface {
	Send(ctx context.Context, channelName, body string, image []byte) error
}

// AlertServiceDeps lists the collaborators the orchestrator ties together.
// Params: one instance per process, wired at startup.
// Returns: constructor input for NewAlertService.
type AlertServiceDeps struct {
	Normalizer  *normalize.Normalizer
	Dedup       *routing.DedupCache
	Router      *routing.Router
	Channels    *channel.Table
	Renderer    *notify.Renderer
	Sender      ChannelSender
	Charts      chart.Generator
	TitlePrefix string
	Log         *slog.Logger
}

// AlertService runs the normalize → dedup → route → render → send pipeline
// for one inbound webhook payload.
// Params: collaborators injected once at startup.
// Returns: stateless orchestrator safe for concurrent requests.
type AlertService struct {
	deps AlertServiceDeps
}

// NewAlertService builds the orchestrator.
// Params: deps with all collaborators set.
// Returns: ready service.
func NewAlertService(deps AlertServiceDeps) *AlertService {
	return &AlertService{deps: deps}
}

// Process handles one inbound webhook payload end to end.
// Params: ctx request context; body raw JSON document.
// Returns: aggregated per-channel outcome; ok is false only when no alerts
// could be parsed — per-channel failures are soft and recorded.
func (s *AlertService) Process(ctx context.Context, body []byte) domain.WebhookResult {
	alerts := s.deps.Normalizer.Normalize(body)
	if len(alerts) == 0 {
		s.deps.Log.Warn("webhook payload produced no alerts")
		return domain.WebhookResult{OK: false, Error: "unrecognized alert payload"}
	}

	names := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		names = append(names, alert.Name())
	}
	s.deps.Log.Info("processing webhook", "alerts", len(alerts), "alertnames", strings.Join(names, ", "))

	var records []domain.DeliveryRecord
	for _, alert := range alerts {
		records = append(records, s.processAlert(ctx, alert)...)
	}
	return domain.WebhookResult{OK: true, Sent: records}
}

// processAlert delivers one canonical alert to its routed channels.
// Params: ctx and one immutable alert.
// Returns: one record per attempted channel; empty when nothing routed.
func (s *AlertService) processAlert(ctx context.Context, alert domain.Alert) []domain.DeliveryRecord {
	alertname := alert.Name()

	if s.deps.Dedup.ShouldSkip(alert) {
		s.deps.Log.Info("suppressing duplicate jenkins firing", "alertname", alertname)
		return []domain.DeliveryRecord{{
			Alert:       alertname,
			Skipped:     "duplicate firing inside jenkins dedup window",
			AlertStatus: alert.Status,
		}}
	}

	labels := alert.MatchLabels()
	targets := s.deps.Router.Route(labels)
	s.deps.Log.Info("routed alert", "alertname", alertname, "channels", targets)

	renderCtx := notify.RenderContext{
		Title:        strings.TrimSpace(s.deps.TitlePrefix + " " + alertname),
		Status:       alert.Status,
		Labels:       labels,
		Annotations:  alert.Annotations,
		StartsAt:     alert.StartsAt,
		EndsAt:       alert.EndsAt,
		GeneratorURL: alert.GeneratorURL,
		Values:       alert.EntityValues,
	}

	// Chart fetch runs before the fan-out and outside any lock; a missing
	// chart downgrades delivery to text, never blocks it.
	image := s.generateChart(ctx, alert, targets)

	records := make([]domain.DeliveryRecord, 0, len(targets))
	for _, target := range targets {
		records = append(records, s.sendToChannel(ctx, target, alert, renderCtx, image))
	}
	return records
}

// generateChart fetches a trend chart when any routed channel can show one.
// Params: ctx, alert, and routed channel names.
// Returns: PNG bytes or nil.
func (s *AlertService) generateChart(ctx context.Context, alert domain.Alert, targets []string) []byte {
	if len(s.deps.Channels.FilterImageCapable(targets, alert.Status)) == 0 {
		return nil
	}

	alertTime := alert.StartsAt
	if alert.Status == domain.StatusResolved {
		alertTime = alert.EndsAt
	}
	return s.deps.Charts.Generate(ctx, alert.Source(), chart.Request{
		AlertName:    alert.Name(),
		GeneratorURL: alert.GeneratorURL,
		AlertTime:    alertTime,
		Labels:       alert.MatchLabels(),
	})
}

// sendToChannel renders and delivers one alert to one channel.
// Params: ctx, routed channel name, alert, render context, optional chart.
// Returns: one delivery record; every failure is soft.
func (s *AlertService) sendToChannel(
	ctx context.Context,
	target string,
	alert domain.Alert,
	renderCtx notify.RenderContext,
	image []byte,
) domain.DeliveryRecord {
	alertname := alert.Name()
	record := domain.DeliveryRecord{Alert: alertname, Channel: target}

	ch, reason := s.deps.Channels.Resolve(target, alert.Status)
	switch reason {
	case "":
	case channel.SkipUnknown:
		s.deps.Log.Warn("alert routed to unknown channel", "alertname", alertname, "channel", target)
		record.Error = reason
		return record
	default:
		s.deps.Log.Debug("skipping channel", "alertname", alertname, "channel", target, "reason", reason)
		record.Skipped = reason
		return record
	}

	body, err := s.deps.Renderer.Render(ch.Template, renderCtx)
	if err != nil {
		s.deps.Log.Error("template render failed",
			"alertname", alertname, "channel", target, "err", err)
		record.Error = err.Error()
		return record
	}
	s.deps.Log.Debug("rendered channel message", "channel", target, "body", body)

	var channelImage []byte
	if image != nil && ch.ImageEnabled {
		channelImage = image
	}

	if err := s.deps.Sender.Send(ctx, target, body, channelImage); err != nil {
		s.deps.Log.Error("channel send failed",
			"alertname", alertname, "channel", target, "err", err)
		record.Error = err.Error()
		return record
	}

	record.Status = "sent"
	record.AlertStatus = alert.Status
	return record
}
