package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"alertrouter/internal/domain"
)

// Processor runs one raw webhook payload through the alert pipeline.
// Params: request context and raw JSON body.
// Returns: aggregated per-channel outcome; never an error.
type Processor interface {
	Process(ctx context.Context, body []byte) domain.WebhookResult
}

// HTTPHandler accepts webhook POSTs and replies with the structured result.
// Params: processor and max request body size.
// Returns: handler for the webhook endpoint.
type HTTPHandler struct {
	processor   Processor
	maxBodySize int64
	log         *slog.Logger
}

// NewHTTPHandler creates the webhook HTTP handler.
// Params: processor, max request body size in bytes, and log destination.
// Returns: configured handler.
func NewHTTPHandler(processor Processor, maxBodySize int64, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{processor: processor, maxBodySize: maxBodySize, log: log}
}

// ServeHTTP handles one webhook delivery. The monitoring source always gets
// a 200 with a structured result for a readable POST body; only transport
// problems (method, unreadable body) map to non-200 statuses.
// Params: HTTP response writer and request.
// Returns: JSON result written to the response.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		h.log.Warn("webhook body read failed", "err", err)
		writeResult(writer, http.StatusBadRequest, domain.WebhookResult{
			OK: false, Error: "unreadable request body",
		})
		return
	}

	result := h.processor.Process(request.Context(), body)
	writeResult(writer, http.StatusOK, result)
}

// writeResult serializes one webhook result.
// Params: writer, HTTP status, and result body.
// Returns: JSON written to the response.
func writeResult(writer http.ResponseWriter, status int, result domain.WebhookResult) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(result)
}
