package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog/log"

	"audio-event-pipeline/internal/service/audio"
)

const (
	maxBodyBytes          = 1 << 20
	cloudEventsMediaType  = "application/cloudevents+json"
	cloudEventsSpecHeader = "Ce-Specversion"
)

type notificationHandler struct {
	notifications *audio.Handler
	ready         func(ctx context.Context) error
	serviceName   string
	kfpEndpoint   string
}

type healthResponse struct {
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	Service     string `json:"service,omitempty"`
	KFPEndpoint string `json:"kfp_endpoint,omitempty"`
}

// HandleEvent accepts a storage notification delivered as a CloudEvent (binary
// or structured mode) or as a bare JSON body.
func (h *notificationHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn().Int64("limit", tooLarge.Limit).Msg("Notification body too large")
			writeJSON(w, http.StatusOK, audio.Response{
				Status: audio.StatusIgnored,
				Reason: fmt.Sprintf("payload exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		log.Error().Err(err).Msg("Failed to read notification body")
		writeJSON(w, http.StatusInternalServerError, audio.Response{Status: audio.StatusError, Message: "failed to read request body"})
		return
	}

	payload := body
	if isCloudEvent(r) {
		r.Body = io.NopCloser(bytes.NewReader(body))
		ev, err := cloudevents.NewEventFromHTTPRequest(r)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to decode CloudEvent")
			writeJSON(w, http.StatusOK, audio.Response{Status: audio.StatusIgnored, Reason: "invalid event structure"})
			return
		}
		log.Info().
			Str("type", ev.Type()).
			Str("source", ev.Source()).
			Str("subject", ev.Subject()).
			Msg("Received CloudEvent")
		payload = ev.Data()
	}

	resp, code := h.notifications.Handle(r.Context(), payload)
	writeJSON(w, code, resp)
}

func (h *notificationHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "healthy",
		Service:     h.serviceName,
		KFPEndpoint: h.kfpEndpoint,
	})
}

func (h *notificationHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready", Reason: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

func isCloudEvent(r *http.Request) bool {
	if r.Header.Get(cloudEventsSpecHeader) != "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == cloudEventsMediaType
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
