// Package resolver resolves and caches the orchestration resources a run needs.
//
// Both slots are populated at most once per Cache. First population is
// single-flighted so concurrent cold starts issue one lookup (and at most one
// experiment create) between them; afterwards reads only take a read lock.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/orchestration"
)

// Resource kinds.
const (
	ResourceExperiment = "experiment"
	ResourcePipeline   = "pipeline"
)

// DefaultPipelinePageSize bounds the pipeline listing.
const DefaultPipelinePageSize = 200

// DefaultLookupTimeout bounds one shared lookup when no timeout is configured.
const DefaultLookupTimeout = 60 * time.Second

// ErrNotFound is wrapped by a ResolutionError when no matching pipeline is registered.
var ErrNotFound = errors.New("not found")

// ErrNoID is wrapped by a ResolutionError when a create call yields no id.
var ErrNoID = errors.New("no id returned")

// ResolutionError reports a cache miss that could not be satisfied.
type ResolutionError struct {
	Resource  string
	Name      string
	Namespace string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s %q in namespace %q: %v", e.Resource, e.Name, e.Namespace, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// API is the subset of the orchestration client the resolver uses.
type API interface {
	FindExperiment(ctx context.Context, namespace, name string) (*orchestration.Experiment, error)
	CreateExperiment(ctx context.Context, namespace, name, description string) (orchestration.Experiment, error)
	ListPipelines(ctx context.Context, namespace string, pageSize int) ([]orchestration.Pipeline, error)
}

// Config names the resources to resolve.
type Config struct {
	Namespace        string
	ExperimentName   string
	PipelineName     string
	PipelinePageSize int
	// Creator is embedded in auto-created experiment descriptions.
	Creator string
	// LookupTimeout bounds a shared lookup, which runs detached from any one caller.
	LookupTimeout time.Duration
}

type slot struct {
	mu  sync.RWMutex
	ref *models.ResourceRef
}

func (s *slot) get() (models.ResourceRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ref == nil {
		return models.ResourceRef{}, false
	}
	return *s.ref, true
}

func (s *slot) set(ref models.ResourceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ref == nil {
		s.ref = &ref
	}
}

// Cache resolves experiment and pipeline ids and keeps them for its lifetime.
type Cache struct {
	api        API
	cfg        Config
	experiment slot
	pipeline   slot
	group      singleflight.Group
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// New creates an empty Cache.
func New(api API, cfg Config) *Cache {
	if cfg.PipelinePageSize <= 0 {
		cfg.PipelinePageSize = DefaultPipelinePageSize
	}
	if cfg.Creator == "" {
		cfg.Creator = "audio-event-pipeline"
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	return &Cache{
		api:     api,
		cfg:     cfg,
		now:     time.Now,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("resolver"),
	}
}

// WithMetrics replaces the metrics sink.
func (c *Cache) WithMetrics(m *metrics.Metrics) *Cache {
	c.metrics = m
	return c
}

// ResolveExperiment returns the id of the configured experiment, creating it when absent.
func (c *Cache) ResolveExperiment(ctx context.Context) (string, error) {
	return c.resolve(ctx, ResourceExperiment, &c.experiment, c.lookupExperiment)
}

// ResolvePipeline returns the id of the configured pipeline. Pipelines are never created.
func (c *Cache) ResolvePipeline(ctx context.Context) (string, error) {
	return c.resolve(ctx, ResourcePipeline, &c.pipeline, c.lookupPipeline)
}

// Experiment returns the cached experiment reference, if populated.
func (c *Cache) Experiment() (models.ResourceRef, bool) {
	return c.experiment.get()
}

// Pipeline returns the cached pipeline reference, if populated.
func (c *Cache) Pipeline() (models.ResourceRef, bool) {
	return c.pipeline.get()
}

func (c *Cache) resolve(ctx context.Context, resource string, s *slot, lookup func(context.Context) (models.ResourceRef, error)) (string, error) {
	if ref, ok := s.get(); ok {
		c.metrics.RecordCacheLookup(resource, true)
		return ref.ID, nil
	}
	c.metrics.RecordCacheLookup(resource, false)

	// The flight is shared by every waiter, so it must not die with the first caller's request.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(resource, func() (any, error) {
		// A flight that finished between our miss and this call already filled the slot.
		if ref, ok := s.get(); ok {
			return ref.ID, nil
		}
		lookupCtx, cancel := context.WithTimeout(flightCtx, c.cfg.LookupTimeout)
		defer cancel()
		ref, err := lookup(lookupCtx)
		if err != nil {
			return "", err
		}
		s.set(ref)
		return ref.ID, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) lookupExperiment(ctx context.Context) (models.ResourceRef, error) {
	name, ns := c.cfg.ExperimentName, c.cfg.Namespace
	ref := models.ResourceRef{DisplayName: name}

	exp, err := c.api.FindExperiment(ctx, ns, name)
	if err != nil {
		return ref, &ResolutionError{Resource: ResourceExperiment, Name: name, Namespace: ns, Err: err}
	}
	if exp != nil && exp.ExperimentID != "" {
		ref.ID = exp.ExperimentID
		c.logger.Info().Str("experiment", name).Str("experimentId", ref.ID).Msg("Using existing experiment")
		return ref, nil
	}

	desc := fmt.Sprintf("Auto-created by %s at %s", c.cfg.Creator, c.now().UTC().Format(time.RFC3339))
	created, err := c.api.CreateExperiment(ctx, ns, name, desc)
	if err != nil {
		return ref, &ResolutionError{Resource: ResourceExperiment, Name: name, Namespace: ns, Err: err}
	}
	if created.ExperimentID == "" {
		return ref, &ResolutionError{Resource: ResourceExperiment, Name: name, Namespace: ns, Err: ErrNoID}
	}

	ref.ID = created.ExperimentID
	c.logger.Info().Str("experiment", name).Str("experimentId", ref.ID).Msg("Created experiment")
	return ref, nil
}

func (c *Cache) lookupPipeline(ctx context.Context) (models.ResourceRef, error) {
	name, ns := c.cfg.PipelineName, c.cfg.Namespace
	ref := models.ResourceRef{DisplayName: name}

	pipelines, err := c.api.ListPipelines(ctx, ns, c.cfg.PipelinePageSize)
	if err != nil {
		return ref, &ResolutionError{Resource: ResourcePipeline, Name: name, Namespace: ns, Err: err}
	}
	for _, p := range pipelines {
		if p.Label() == name && p.PipelineID != "" {
			ref.ID = p.PipelineID
			c.logger.Info().Str("pipeline", name).Str("pipelineId", ref.ID).Msg("Resolved pipeline")
			return ref, nil
		}
	}
	return ref, &ResolutionError{Resource: ResourcePipeline, Name: name, Namespace: ns, Err: ErrNotFound}
}
