// Package stub provides a deterministic transcriber for running without inference credentials.
// It never touches the network and never fails, so a full pipeline run can be
// demonstrated end to end.
package stub

import (
	"context"
	"fmt"
	"path/filepath"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/service/stt"
)

const textTemplate = "[DEMO TRANSCRIPT] Segment %d from file '%s'. " +
	"This is generated placeholder text to illustrate the final experience " +
	"without calling the inference API."

// Transcriber implements stt.Transcriber with placeholder text.
type Transcriber struct{}

// New creates a stub transcriber.
func New() *Transcriber {
	return &Transcriber{}
}

// Name returns the provider name.
func (t *Transcriber) Name() string {
	return stt.ProviderStub
}

// Transcribe returns placeholder text naming the segment's batch position and file.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	seg := t.Fill(req.Segment)
	return Text(req.Position, seg.Filename), nil
}

// Fill derives missing metadata: filename from the path, end time from
// start+duration, duration from end-start (never negative).
func (t *Transcriber) Fill(seg models.Segment) models.Segment {
	if seg.Filename == "" {
		seg.Filename = filepath.Base(seg.Path)
	}
	if seg.EndTime == 0 {
		seg.EndTime = seg.StartTime + seg.Duration
	}
	if seg.Duration == 0 {
		seg.Duration = max(0, seg.EndTime-seg.StartTime)
	}
	return seg
}

// Text renders the placeholder transcript for the segment at 1-based position.
func Text(position int, filename string) string {
	return fmt.Sprintf(textTemplate, position, filename)
}
