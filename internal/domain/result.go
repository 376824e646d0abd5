package domain

// DeliveryRecord is the per-channel outcome of one alert fan-out.
// Params: alert/channel identity plus exactly one of status/error/skipped.
// Returns: one entry of the aggregated webhook response.
type DeliveryRecord struct {
	Alert       string `json:"alert"`
	Channel     string `json:"channel,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	Skipped     string `json:"skipped,omitempty"`
	AlertStatus string `json:"alert_status,omitempty"`
}

// WebhookResult is the structured response returned to the webhook caller.
// Params: overall flag, per-channel records, and request-level error text.
// Returns: body serialized for the HTTP/NATS ingest layers.
type WebhookResult struct {
	OK    bool             `json:"ok"`
	Sent  []DeliveryRecord `json:"sent,omitempty"`
	Error string           `json:"error,omitempty"`
}
