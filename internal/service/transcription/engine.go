// Package transcription runs a batch of audio segments through a transcriber
// under a bounded retry policy and partitions the outcomes.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/service/retry"
	"audio-event-pipeline/internal/service/segment"
	"audio-event-pipeline/internal/service/stt"
)

// ErrIncomplete marks a segment whose lifecycle never reached a terminal state.
var ErrIncomplete = errors.New("segment not completed")

// Options configures an Engine.
type Options struct {
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
	// Sleep replaces the backoff timer, mainly for tests.
	Sleep retry.SleepFunc
}

// Engine transcribes batches of segments. One failing segment never aborts the batch.
type Engine struct {
	transcriber stt.Transcriber
	policy      retry.Policy
	concurrency int
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// New creates an Engine around transcriber.
func New(transcriber stt.Transcriber, opts Options) *Engine {
	policy := retry.New(opts.MaxRetries, opts.RetryDelay)
	policy.Sleep = opts.Sleep
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Engine{
		transcriber: transcriber,
		policy:      policy,
		concurrency: opts.Concurrency,
		metrics:     metrics.DefaultMetrics,
		logger:      logging.WithComponent("transcription"),
	}
}

// WithMetrics replaces the metrics sink.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Provider returns the name of the selected transcriber.
func (e *Engine) Provider() string {
	return e.transcriber.Name()
}

// Transcribe returns one result per input segment, split into successes and
// failures. Both partitions keep input order.
func (e *Engine) Transcribe(ctx context.Context, segments []models.Segment) (successes, failures []models.TranscriptionResult) {
	start := time.Now()
	e.logger.Info().
		Int("segments", len(segments)).
		Str("sttProvider", e.transcriber.Name()).
		Int("maxRetries", e.policy.MaxAttempts).
		Int("concurrency", e.concurrency).
		Msg("Starting batch transcription")

	tracker := segment.NewTracker(segment.IDs(segments))
	results := make([]models.TranscriptionResult, len(segments))

	if e.concurrency <= 1 || len(segments) <= 1 {
		for i, seg := range segments {
			results[i] = e.transcribeOne(ctx, tracker.At(i), seg, i+1)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.concurrency)
		for i, seg := range segments {
			g.Go(func() error {
				results[i] = e.transcribeOne(ctx, tracker.At(i), seg, i+1)
				return nil
			})
		}
		_ = g.Wait()
	}

	if !tracker.AllDone() {
		for i := range results {
			if lc := tracker.At(i); !lc.IsDone() {
				e.metrics.RecordLifecycleError("complete")
				results[i] = failedResult(segments[i], fmt.Errorf("%w: left in state %s", ErrIncomplete, lc.State()), results[i].Attempts)
			}
		}
	}

	for _, r := range results {
		if r.Success {
			successes = append(successes, r)
		} else {
			failures = append(failures, r)
		}
	}

	e.metrics.RecordBatch(time.Since(start).Seconds())
	e.logger.Info().
		Int("successful", len(successes)).
		Int("failed", len(failures)).
		Any("states", stateCounts(tracker)).
		Dur("duration", time.Since(start)).
		Msg("Transcription complete")
	return successes, failures
}

// transcribeOne produces the result for one segment. A result only counts as
// a success when the lifecycle accepts the matching terminal transition.
func (e *Engine) transcribeOne(ctx context.Context, lc *segment.Lifecycle, seg models.Segment, position int) models.TranscriptionResult {
	provider := e.transcriber.Name()
	logger := logging.WithSegment(seg.SegmentID, seg.Filename, provider)

	if err := lc.Start(); err != nil {
		e.metrics.RecordLifecycleError("start")
		logger.Error().Err(err).Str("state", lc.State().String()).Msg("Segment lifecycle violation")
		return failedResult(seg, fmt.Errorf("start segment: %w", err), 0)
	}
	if f, ok := e.transcriber.(stt.SegmentFiller); ok {
		seg = f.Fill(seg)
	}

	req := stt.Request{Segment: seg, Position: position}
	out := retry.Do(ctx, e.policy, func(ctx context.Context, attempt int) (string, error) {
		began := time.Now()
		text, err := e.transcriber.Transcribe(ctx, req)
		e.metrics.RecordSTTAttempt(provider, err, time.Since(began).Seconds())
		if err != nil {
			logger.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxAttempts", e.policy.MaxAttempts).
				Msg("Transcription attempt failed")
		}
		return text, err
	})

	var result models.TranscriptionResult
	if out.Succeeded() {
		result = resultFor(seg, out.Attempts)
		result.Success = true
		result.Text = out.Value
		if err := lc.Succeed(); err != nil {
			e.metrics.RecordLifecycleError("succeed")
			logger.Error().Err(err).Str("state", lc.State().String()).Msg("Segment lifecycle violation")
			result = failedResult(seg, fmt.Errorf("complete segment: %w", err), out.Attempts)
		}
	} else {
		result = failedResult(seg, out.Err, out.Attempts)
		if err := lc.Fail(); err != nil {
			e.metrics.RecordLifecycleError("fail")
			logger.Error().Err(err).Str("state", lc.State().String()).Msg("Segment lifecycle violation")
		}
		logger.Error().Err(out.Err).Int("attempts", out.Attempts).Msg("All retries exhausted for segment")
	}
	e.metrics.RecordSegmentCompleted(result.Success)
	return result
}

func resultFor(seg models.Segment, attempts int) models.TranscriptionResult {
	return models.TranscriptionResult{
		SegmentID: seg.SegmentID,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
		Duration:  seg.Duration,
		Filename:  seg.Filename,
		Attempts:  attempts,
	}
}

func failedResult(seg models.Segment, err error, attempts int) models.TranscriptionResult {
	r := resultFor(seg, attempts)
	r.Error = err.Error()
	return r
}

func stateCounts(t *segment.Tracker) map[string]int {
	out := make(map[string]int, 4)
	for state, n := range t.Counts() {
		out[state.String()] = n
	}
	return out
}
