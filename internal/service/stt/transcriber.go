// Package stt defines the contract for per-segment speech-to-text strategies.
package stt

import (
	"context"

	"audio-event-pipeline/internal/models"
)

// Provider names.
const (
	ProviderStub   = "stub"
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// Request is one transcription call.
type Request struct {
	Segment models.Segment
	// Position is the 1-based position of the segment in its batch.
	Position int
}

// Transcriber turns one audio segment into text.
// Implementations are selected once per batch and must be safe for concurrent use.
type Transcriber interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe returns the text for req.Segment. A returned error marks the attempt as failed.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// SegmentFiller is implemented by transcribers that fill in missing segment
// metadata before a result is recorded.
type SegmentFiller interface {
	Fill(seg models.Segment) models.Segment
}
