// Package audio coordinates inbound storage notifications with the run trigger.
package audio

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/schema"
)

// Response statuses.
const (
	StatusIgnored = "ignored"
	StatusSuccess = "success"
	StatusError   = "error"
)

const messageTriggered = "Pipeline triggered"

// Response is the outcome reported back to the notification sender.
type Response struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	RunID   string `json:"run_id,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Object  string `json:"object,omitempty"`
}

// Normalizer turns raw payloads into accepted or ignored events.
type Normalizer interface {
	Normalize(payload []byte) schema.Result
}

// RunTrigger launches a pipeline run for an accepted event.
type RunTrigger interface {
	Trigger(ctx context.Context, bucket, objectKey string, eventTime time.Time) (models.RunHandle, error)
}

// Handler processes one notification at a time; it holds no per-request state.
type Handler struct {
	normalizer Normalizer
	trigger    RunTrigger
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewHandler creates a notification handler.
func NewHandler(normalizer Normalizer, trigger RunTrigger) *Handler {
	return &Handler{
		normalizer: normalizer,
		trigger:    trigger,
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("notification-handler"),
	}
}

// WithMetrics replaces the metrics sink.
func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

// Handle normalizes payload and, when accepted, triggers a run.
// Ignored notifications are not errors and map to 200.
func (h *Handler) Handle(ctx context.Context, payload []byte) (Response, int) {
	res := h.normalizer.Normalize(payload)
	if res.Ignored {
		h.logger.Info().
			Str("rule", res.Rule).
			Str("reason", res.Reason).
			Str("bucket", res.Event.Bucket).
			Str("objectKey", res.Event.ObjectKey).
			Msg("Ignoring notification")
		h.metrics.RecordIgnored(res.Rule)
		h.metrics.RecordNotification(StatusIgnored)
		return Response{Status: StatusIgnored, Reason: res.Reason}, http.StatusOK
	}

	return h.Process(ctx, res.Event)
}

// Process triggers a run for an already accepted event.
func (h *Handler) Process(ctx context.Context, ev models.NotificationEvent) (Response, int) {
	logger := logging.WithObject(ev.Bucket, ev.ObjectKey)
	logger.Info().Msg("Processing audio file")

	handle, err := h.trigger.Trigger(ctx, ev.Bucket, ev.ObjectKey, ev.EventTime)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to trigger pipeline")
		h.metrics.RecordNotification(StatusError)
		return Response{Status: StatusError, Message: err.Error()}, http.StatusInternalServerError
	}

	h.metrics.RecordNotification(StatusSuccess)
	return Response{
		Status:  StatusSuccess,
		Message: messageTriggered,
		RunID:   handle.RunID,
		Bucket:  handle.Bucket,
		Object:  handle.ObjectKey,
	}, http.StatusOK
}
