package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/orchestration"
)

type fakeAPI struct {
	existing    *orchestration.Experiment
	createdID   string
	pipelines   []orchestration.Pipeline
	findErr     error
	listErr     error
	findDelay   time.Duration
	finds       atomic.Int32
	creates     atomic.Int32
	lists       atomic.Int32
	description string
	mu          sync.Mutex
}

func (f *fakeAPI) FindExperiment(ctx context.Context, namespace, name string) (*orchestration.Experiment, error) {
	f.finds.Add(1)
	if f.findDelay > 0 {
		time.Sleep(f.findDelay)
	}
	return f.existing, f.findErr
}

func (f *fakeAPI) CreateExperiment(ctx context.Context, namespace, name, description string) (orchestration.Experiment, error) {
	f.creates.Add(1)
	f.mu.Lock()
	f.description = description
	f.mu.Unlock()
	return orchestration.Experiment{ExperimentID: f.createdID, DisplayName: name}, nil
}

func (f *fakeAPI) ListPipelines(ctx context.Context, namespace string, pageSize int) ([]orchestration.Pipeline, error) {
	f.lists.Add(1)
	return f.pipelines, f.listErr
}

func newTestCache(api API) (*Cache, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := New(api, Config{
		Namespace:      "kubeflow",
		ExperimentName: "Audio Runs",
		PipelineName:   "audio-pipeline",
	}).WithMetrics(m)
	c.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c, m
}

func TestResolveExperiment_ExistingIsCached(t *testing.T) {
	api := &fakeAPI{existing: &orchestration.Experiment{ExperimentID: "e-1", DisplayName: "Audio Runs"}}
	c, m := newTestCache(api)

	for i := 0; i < 3; i++ {
		id, err := c.ResolveExperiment(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "e-1", id)
	}

	assert.Equal(t, int32(1), api.finds.Load())
	assert.Equal(t, int32(0), api.creates.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ResolverCache.WithLabelValues(ResourceExperiment, "miss")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ResolverCache.WithLabelValues(ResourceExperiment, "hit")))

	ref, ok := c.Experiment()
	require.True(t, ok)
	assert.Equal(t, "Audio Runs", ref.DisplayName)
}

func TestResolveExperiment_CreatesWhenAbsent(t *testing.T) {
	api := &fakeAPI{createdID: "e-new"}
	c, _ := newTestCache(api)

	id, err := c.ResolveExperiment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e-new", id)
	assert.Equal(t, int32(1), api.creates.Load())
	assert.Equal(t, "Auto-created by audio-event-pipeline at 2025-06-01T12:00:00Z", api.description)
}

func TestResolveExperiment_ConcurrentColdStartCreatesOnce(t *testing.T) {
	api := &fakeAPI{createdID: "e-new", findDelay: 20 * time.Millisecond}
	c, _ := newTestCache(api)

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = c.ResolveExperiment(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "e-new", ids[i])
	}
	assert.Equal(t, int32(1), api.creates.Load())
}

func TestResolveExperiment_EmptyCreateID(t *testing.T) {
	api := &fakeAPI{}
	c, _ := newTestCache(api)

	_, err := c.ResolveExperiment(context.Background())
	require.Error(t, err)

	var resErr *ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, ResourceExperiment, resErr.Resource)
	assert.ErrorIs(t, err, ErrNoID)

	_, ok := c.Experiment()
	assert.False(t, ok, "failed resolution must not populate the cache")
}

func TestResolveExperiment_LookupErrorIsRetriedNextCall(t *testing.T) {
	api := &fakeAPI{findErr: errors.New("connection refused")}
	c, _ := newTestCache(api)

	_, err := c.ResolveExperiment(context.Background())
	require.Error(t, err)

	api.findErr = nil
	api.existing = &orchestration.Experiment{ExperimentID: "e-1"}
	id, err := c.ResolveExperiment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "e-1", id)
	assert.Equal(t, int32(2), api.finds.Load())
}

func TestResolvePipeline(t *testing.T) {
	tests := []struct {
		name      string
		pipelines []orchestration.Pipeline
		wantID    string
		wantErr   error
	}{
		{
			name: "display name match",
			pipelines: []orchestration.Pipeline{
				{PipelineID: "p-0", DisplayName: "other"},
				{PipelineID: "p-1", DisplayName: "audio-pipeline"},
			},
			wantID: "p-1",
		},
		{
			name:      "legacy name fallback",
			pipelines: []orchestration.Pipeline{{PipelineID: "p-2", Name: "audio-pipeline"}},
			wantID:    "p-2",
		},
		{
			name:      "missing pipeline",
			pipelines: []orchestration.Pipeline{{PipelineID: "p-3", DisplayName: "nope"}},
			wantErr:   ErrNotFound,
		},
		{
			name:    "empty listing",
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{pipelines: tt.pipelines}
			c, _ := newTestCache(api)

			id, err := c.ResolvePipeline(context.Background())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				var resErr *ResolutionError
				require.True(t, errors.As(err, &resErr))
				assert.Equal(t, ResourcePipeline, resErr.Resource)
				assert.Equal(t, "audio-pipeline", resErr.Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestResolvePipeline_NeverCreatesAndCaches(t *testing.T) {
	api := &fakeAPI{pipelines: []orchestration.Pipeline{{PipelineID: "p-1", DisplayName: "audio-pipeline"}}}
	c, _ := newTestCache(api)

	for i := 0; i < 2; i++ {
		_, err := c.ResolvePipeline(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.lists.Load())
	assert.Equal(t, int32(0), api.creates.Load())
}

// gatedAPI blocks experiment lookups until released and records the lookup context state.
type gatedAPI struct {
	fakeAPI
	entered  chan struct{}
	release  chan struct{}
	ctxErr   error
	deadline bool
}

func (g *gatedAPI) FindExperiment(ctx context.Context, namespace, name string) (*orchestration.Experiment, error) {
	close(g.entered)
	<-g.release
	g.ctxErr = ctx.Err()
	_, g.deadline = ctx.Deadline()
	return &orchestration.Experiment{ExperimentID: "e-9"}, nil
}

func TestResolveExperiment_FirstCallerCancelDoesNotFailWaiters(t *testing.T) {
	api := &gatedAPI{entered: make(chan struct{}), release: make(chan struct{})}
	c, _ := newTestCache(api)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ResolveExperiment(firstCtx)
		firstErr <- err
	}()
	<-api.entered

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := c.ResolveExperiment(context.Background())
		second <- result{id, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(api.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "e-9", got.id)

	assert.NoError(t, api.ctxErr)
	assert.True(t, api.deadline)
	ref, ok := c.Experiment()
	assert.True(t, ok)
	assert.Equal(t, "e-9", ref.ID)
}

func TestNew_DefaultLookupTimeout(t *testing.T) {
	c := New(&fakeAPI{}, Config{})
	assert.Equal(t, DefaultLookupTimeout, c.cfg.LookupTimeout)
}
