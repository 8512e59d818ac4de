// Package orchestration is a REST client for the pipeline-orchestration API
// (Kubeflow Pipelines v2beta1 surface).
package orchestration

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
)

const (
	experimentsPath = "/apis/v2beta1/experiments"
	pipelinesPath   = "/apis/v2beta1/pipelines"
	runsPath        = "/apis/v2beta1/runs"

	// filterOpEquals is the predicate operation code for EQUALS.
	filterOpEquals = 1
)

// Config holds the client settings.
type Config struct {
	Endpoint   string
	VerifySSL  bool
	CACertPath string
	Timeout    time.Duration
}

// APIError is returned for any response with status >= 400.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("orchestration API %s %s failed: %d - %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Experiment is an experiment as returned by the API.
type Experiment struct {
	ExperimentID string `json:"experiment_id"`
	DisplayName  string `json:"display_name"`
	Namespace    string `json:"namespace,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Pipeline is a registered pipeline as returned by the API.
type Pipeline struct {
	PipelineID  string `json:"pipeline_id"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
}

// Label returns the display name, falling back to the legacy name field.
func (p Pipeline) Label() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

// Run is a pipeline run as returned by the API.
type Run struct {
	RunID        string `json:"run_id"`
	DisplayName  string `json:"display_name"`
	ExperimentID string `json:"experiment_id"`
	State        string `json:"state,omitempty"`
}

// PipelineVersionReference points a run at a pipeline.
type PipelineVersionReference struct {
	PipelineID        string `json:"pipeline_id"`
	PipelineVersionID string `json:"pipeline_version_id,omitempty"`
}

// RuntimeConfig carries run parameters.
type RuntimeConfig struct {
	Parameters map[string]string `json:"parameters"`
}

// CreateRunRequest is the body of a run submission.
type CreateRunRequest struct {
	DisplayName              string                   `json:"display_name"`
	PipelineVersionReference PipelineVersionReference `json:"pipeline_version_reference"`
	RuntimeConfig            RuntimeConfig            `json:"runtime_config"`
}

type filterPredicate struct {
	Key         string `json:"key"`
	Operation   int    `json:"operation"`
	StringValue string `json:"stringValue"`
}

type filter struct {
	Predicates []filterPredicate `json:"predicates"`
}

type listExperimentsResponse struct {
	Experiments []Experiment `json:"experiments"`
}

type listPipelinesResponse struct {
	Pipelines []Pipeline `json:"pipelines"`
}

// Client talks to the orchestration API.
type Client struct {
	rest    *resty.Client
	timeout time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if !cfg.VerifySSL {
		rest.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	} else if cfg.CACertPath != "" {
		rest.SetRootCertificate(cfg.CACertPath)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		rest:    rest,
		timeout: timeout,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("orchestration"),
	}
}

// WithMetrics replaces the metrics sink.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// EqualsFilter builds the JSON filter that matches display_name exactly.
func EqualsFilter(displayName string) string {
	b, _ := json.Marshal(filter{Predicates: []filterPredicate{{
		Key:         "display_name",
		Operation:   filterOpEquals,
		StringValue: displayName,
	}}})
	return string(b)
}

// FindExperiment returns the experiment whose display name equals name, or nil when none exists.
func (c *Client) FindExperiment(ctx context.Context, namespace, name string) (*Experiment, error) {
	var out listExperimentsResponse
	err := c.do(ctx, "list_experiments", http.MethodGet, experimentsPath, c.timeout,
		map[string]string{
			"namespace": namespace,
			"filter":    EqualsFilter(name),
			"page_size": "1",
		}, nil, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Experiments) == 0 {
		return nil, nil
	}
	exp := out.Experiments[0]
	return &exp, nil
}

// CreateExperiment registers a new experiment.
func (c *Client) CreateExperiment(ctx context.Context, namespace, name, description string) (Experiment, error) {
	var out Experiment
	err := c.do(ctx, "create_experiment", http.MethodPost, experimentsPath, c.timeout, nil,
		Experiment{DisplayName: name, Namespace: namespace, Description: description}, &out)
	return out, err
}

// ListPipelines lists pipelines in namespace, at most pageSize entries.
func (c *Client) ListPipelines(ctx context.Context, namespace string, pageSize int) ([]Pipeline, error) {
	var out listPipelinesResponse
	err := c.do(ctx, "list_pipelines", http.MethodGet, pipelinesPath, c.timeout,
		map[string]string{
			"namespace": namespace,
			"page_size": strconv.Itoa(pageSize),
		}, nil, &out)
	return out.Pipelines, err
}

// CreateRun submits a run in experimentID. timeout overrides the client default.
func (c *Client) CreateRun(ctx context.Context, experimentID string, req CreateRunRequest, timeout time.Duration) (Run, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	var out Run
	err := c.do(ctx, "create_run", http.MethodPost, runsPath, timeout,
		map[string]string{"experiment_id": experimentID}, req, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, timeout time.Duration, query map[string]string, body, out any) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		c.metrics.RecordOrchestrationCall(op, err, time.Since(start).Seconds())
		return fmt.Errorf("orchestration API %s %s: %w", method, path, err)
	}

	if res.StatusCode() >= http.StatusBadRequest {
		apiErr := &APIError{
			Method:     method,
			URL:        res.Request.URL,
			StatusCode: res.StatusCode(),
			Body:       res.String(),
		}
		c.logger.Error().
			Str("method", method).
			Str("url", apiErr.URL).
			Int("statusCode", apiErr.StatusCode).
			Str("response", apiErr.Body).
			Msg("Orchestration API call failed")
		c.metrics.RecordOrchestrationCall(op, apiErr, time.Since(start).Seconds())
		return apiErr
	}

	c.metrics.RecordOrchestrationCall(op, nil, time.Since(start).Seconds())

	raw := res.Body()
	if len(raw) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Undecodable bodies are treated as empty, matching the API's optional-body responses.
		c.logger.Warn().Err(err).Str("url", res.Request.URL).Msg("Failed to decode orchestration response")
	}
	return nil
}
