// Package transcript assembles segment results into an ordered transcript document.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"audio-event-pipeline/internal/models"
)

const (
	header = "=== EARNINGS CALL TRANSCRIPT ===\n"
	footer = "\n\n=== END TRANSCRIPT ==="
)

// Assemble sorts results by segment id (stable), renders the document and
// computes the summary metadata. The input slice is not modified.
func Assemble(results []models.TranscriptionResult, sourceAudio string, sampleRate int) models.Transcript {
	sorted := make([]models.TranscriptionResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SegmentID < sorted[j].SegmentID
	})

	return models.Transcript{
		Document: Render(sorted),
		Results:  sorted,
		Metadata: Summarize(sorted, sourceAudio, sampleRate),
	}
}

// Render formats already sorted results.
func Render(sorted []models.TranscriptionResult) string {
	lines := make([]string, 0, 2*len(sorted)+4)
	lines = append(lines, header)

	for _, r := range sorted {
		lines = append(lines, "\n"+FormatTimestamp(r.StartTime, r.EndTime))
		lines = append(lines, strings.TrimSpace(r.Text))
	}

	lines = append(lines, footer)
	lines = append(lines, fmt.Sprintf("\nTotal segments: %d", len(sorted)))
	if len(sorted) > 0 {
		total := sorted[len(sorted)-1].EndTime
		lines = append(lines, fmt.Sprintf("Total duration: %d:%02d", minutes(total), seconds(total)))
	}

	return strings.Join(lines, "\n")
}

// Summarize computes transcript metadata for already sorted results.
func Summarize(sorted []models.TranscriptionResult, sourceAudio string, sampleRate int) models.TranscriptMetadata {
	meta := models.TranscriptMetadata{
		SourceAudio:   sourceAudio,
		SampleRate:    sampleRate,
		TotalSegments: len(sorted),
		Segments:      sorted,
	}
	if meta.Segments == nil {
		meta.Segments = []models.TranscriptionResult{}
	}
	if len(sorted) == 0 {
		return meta
	}

	meta.TotalDuration = sorted[len(sorted)-1].EndTime
	for _, r := range sorted {
		meta.TotalWords += len(strings.Fields(r.Text))
	}
	meta.AvgSegmentDuration = meta.TotalDuration / float64(len(sorted))
	return meta
}

// FormatTimestamp renders "[MM:SS - MM:SS]" with whole minutes and seconds.
func FormatTimestamp(start, end float64) string {
	return fmt.Sprintf("[%02d:%02d - %02d:%02d]", minutes(start), seconds(start), minutes(end), seconds(end))
}

func minutes(secs float64) int {
	return int(secs) / 60
}

func seconds(secs float64) int {
	return int(secs) % 60
}

// WriteFile writes the document to path, creating parent directories.
func WriteFile(path, document string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// WriteMetadata writes meta as indented JSON to path, creating parent directories.
func WriteMetadata(path string, meta models.TranscriptMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript metadata: %w", err)
	}
	return WriteFile(path, string(data))
}
