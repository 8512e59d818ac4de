package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-event-pipeline/internal/observability/metrics"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Endpoint: srv.URL + "/", Timeout: 5 * time.Second}).
		WithMetrics(metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestEqualsFilter(t *testing.T) {
	var f map[string]any
	require.NoError(t, json.Unmarshal([]byte(EqualsFilter("Audio Runs")), &f))

	preds := f["predicates"].([]any)
	require.Len(t, preds, 1)
	p := preds[0].(map[string]any)
	assert.Equal(t, "display_name", p["key"])
	assert.Equal(t, float64(1), p["operation"])
	assert.Equal(t, "Audio Runs", p["stringValue"])
}

func TestFindExperiment_Found(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, experimentsPath, r.URL.Path)
		assert.Equal(t, "ns", r.URL.Query().Get("namespace"))
		assert.Equal(t, "1", r.URL.Query().Get("page_size"))
		assert.Equal(t, EqualsFilter("exp"), r.URL.Query().Get("filter"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"experiments":[{"experiment_id":"e-1","display_name":"exp"}]}`))
	})

	exp, err := c.FindExperiment(context.Background(), "ns", "exp")
	require.NoError(t, err)
	require.NotNil(t, exp)
	assert.Equal(t, "e-1", exp.ExperimentID)
}

func TestFindExperiment_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	exp, err := c.FindExperiment(context.Background(), "ns", "exp")
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestCreateExperiment_SendsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var got Experiment
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "exp", got.DisplayName)
		assert.Equal(t, "ns", got.Namespace)
		assert.Equal(t, "desc", got.Description)
		_, _ = w.Write([]byte(`{"experiment_id":"e-2"}`))
	})

	exp, err := c.CreateExperiment(context.Background(), "ns", "exp", "desc")
	require.NoError(t, err)
	assert.Equal(t, "e-2", exp.ExperimentID)
}

func TestListPipelines(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pipelinesPath, r.URL.Path)
		assert.Equal(t, "200", r.URL.Query().Get("page_size"))
		_, _ = w.Write([]byte(`{"pipelines":[{"pipeline_id":"p-1","name":"legacy"},{"pipeline_id":"p-2","display_name":"audio"}]}`))
	})

	pipelines, err := c.ListPipelines(context.Background(), "ns", 200)
	require.NoError(t, err)
	require.Len(t, pipelines, 2)
	assert.Equal(t, "legacy", pipelines[0].Label())
	assert.Equal(t, "audio", pipelines[1].Label())
}

func TestCreateRun(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, runsPath, r.URL.Path)
		assert.Equal(t, "e-1", r.URL.Query().Get("experiment_id"))

		var got CreateRunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "run-a", got.DisplayName)
		assert.Equal(t, "p-1", got.PipelineVersionReference.PipelineID)
		assert.Equal(t, "bucket", got.RuntimeConfig.Parameters["s3_bucket"])

		_, _ = w.Write([]byte(`{"run_id":"r-1","display_name":"run-a"}`))
	})

	run, err := c.CreateRun(context.Background(), "e-1", CreateRunRequest{
		DisplayName:              "run-a",
		PipelineVersionReference: PipelineVersionReference{PipelineID: "p-1"},
		RuntimeConfig:            RuntimeConfig{Parameters: map[string]string{"s3_bucket": "bucket"}},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "r-1", run.RunID)
}

func TestClient_HTTPErrorPreservesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`permission denied`))
	})

	_, err := c.ListPipelines(context.Background(), "ns", 10)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "permission denied", apiErr.Body)
	assert.Contains(t, err.Error(), "403")
}

func TestClient_EmptyOrInvalidBodyIsEmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})

	run, err := c.CreateRun(context.Background(), "e", CreateRunRequest{}, time.Second)
	require.NoError(t, err)
	assert.Empty(t, run.RunID)
}

func TestClient_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := c.CreateRun(context.Background(), "e", CreateRunRequest{}, 50*time.Millisecond)
	require.Error(t, err)
}
