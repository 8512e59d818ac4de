// Package trigger submits one pipeline run per accepted audio object.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/orchestration"
)

// Stages at which a trigger can fail.
const (
	StageResolveExperiment = "resolve-experiment"
	StageResolvePipeline   = "resolve-pipeline"
	StageSubmit            = "submit"
	StageResponse          = "response"
)

const runNameTimeLayout = "20060102-150405"

// ErrMissingRunID is returned when a successful submission carries no run id.
var ErrMissingRunID = errors.New("no run_id in response")

// TriggerError wraps any failure to launch a run.
type TriggerError struct {
	Stage     string
	Bucket    string
	ObjectKey string
	Err       error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("trigger run for s3://%s/%s failed at %s: %v", e.Bucket, e.ObjectKey, e.Stage, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// Resolver supplies cached orchestration resource ids.
type Resolver interface {
	ResolveExperiment(ctx context.Context) (string, error)
	ResolvePipeline(ctx context.Context) (string, error)
}

// RunSubmitter submits runs to the orchestration API.
type RunSubmitter interface {
	CreateRun(ctx context.Context, experimentID string, req orchestration.CreateRunRequest, timeout time.Duration) (orchestration.Run, error)
}

// EventPublisher receives run lifecycle events.
type EventPublisher interface {
	PublishRunTriggered(ctx context.Context, ev models.RunTriggeredEvent) error
}

// Parameters are the configuration values forwarded to every run.
type Parameters struct {
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	InferenceURL     string
	InferenceKey     string
	InferenceModel   string
	VectorHost       string
	VectorPort       string
	Collection       string
}

// Build returns the run parameter map for one object.
func (p Parameters) Build(bucket, objectKey string) map[string]string {
	return map[string]string{
		"s3_bucket":       bucket,
		"s3_key":          objectKey,
		"s3_endpoint_url": p.StorageEndpoint,
		"s3_access_key":   p.StorageAccessKey,
		"s3_secret_key":   p.StorageSecretKey,
		"voxtral_api_url": p.InferenceURL,
		"voxtral_api_key": p.InferenceKey,
		"voxtral_model":   p.InferenceModel,
		"milvus_host":     p.VectorHost,
		"milvus_port":     p.VectorPort,
		"collection_name": p.Collection,
	}
}

// RunName derives the run display name from the object key and submission time.
// Two triggers for the same key within one second produce the same name.
func RunName(objectKey string, now time.Time) string {
	return "audio-" + strings.ReplaceAll(objectKey, "/", "-") + "-" + now.Format(runNameTimeLayout)
}

// Trigger launches pipeline runs.
type Trigger struct {
	resolver   Resolver
	runs       RunSubmitter
	publisher  EventPublisher
	params     Parameters
	runTimeout time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates a Trigger. publisher may be nil.
func New(resolver Resolver, runs RunSubmitter, publisher EventPublisher, params Parameters, runTimeout time.Duration) *Trigger {
	return &Trigger{
		resolver:   resolver,
		runs:       runs,
		publisher:  publisher,
		params:     params,
		runTimeout: runTimeout,
		now:        time.Now,
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("trigger"),
	}
}

// WithMetrics replaces the metrics sink.
func (t *Trigger) WithMetrics(m *metrics.Metrics) *Trigger {
	t.metrics = m
	return t
}

// WithClock replaces the clock used for run names.
func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	t.now = now
	return t
}

// Trigger resolves resources, submits a run for bucket/objectKey and returns its handle.
func (t *Trigger) Trigger(ctx context.Context, bucket, objectKey string, eventTime time.Time) (models.RunHandle, error) {
	fail := func(stage string, err error) (models.RunHandle, error) {
		t.metrics.RecordTriggerFailure(stage)
		return models.RunHandle{}, &TriggerError{Stage: stage, Bucket: bucket, ObjectKey: objectKey, Err: err}
	}

	experimentID, err := t.resolver.ResolveExperiment(ctx)
	if err != nil {
		return fail(StageResolveExperiment, err)
	}
	pipelineID, err := t.resolver.ResolvePipeline(ctx)
	if err != nil {
		return fail(StageResolvePipeline, err)
	}

	req := models.RunRequest{
		RunName:      RunName(objectKey, t.now()),
		ExperimentID: experimentID,
		PipelineID:   pipelineID,
		Parameters:   t.params.Build(bucket, objectKey),
	}
	logger := logging.WithRun(req.RunName, bucket, objectKey)
	logger.Info().
		Str("experimentId", experimentID).
		Str("pipelineId", pipelineID).
		Time("eventTime", eventTime).
		Msg("Submitting pipeline run")

	run, err := t.runs.CreateRun(ctx, experimentID, orchestration.CreateRunRequest{
		DisplayName:              req.RunName,
		PipelineVersionReference: orchestration.PipelineVersionReference{PipelineID: pipelineID},
		RuntimeConfig:            orchestration.RuntimeConfig{Parameters: req.Parameters},
	}, t.runTimeout)
	if err != nil {
		return fail(StageSubmit, err)
	}
	if run.RunID == "" {
		return fail(StageResponse, ErrMissingRunID)
	}

	t.metrics.RecordRunTriggered()
	logger.Info().Str("runId", run.RunID).Msg("Pipeline run submitted")

	handle := models.RunHandle{
		RunID:     run.RunID,
		RunName:   req.RunName,
		Bucket:    bucket,
		ObjectKey: objectKey,
	}
	t.publish(ctx, handle, req)
	return handle, nil
}

func (t *Trigger) publish(ctx context.Context, h models.RunHandle, req models.RunRequest) {
	if t.publisher == nil {
		return
	}
	err := t.publisher.PublishRunTriggered(ctx, models.RunTriggeredEvent{
		RunID:        h.RunID,
		RunName:      h.RunName,
		ExperimentID: req.ExperimentID,
		PipelineID:   req.PipelineID,
		Bucket:       h.Bucket,
		ObjectKey:    h.ObjectKey,
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("runId", h.RunID).Msg("Failed to publish run triggered event")
	}
}
