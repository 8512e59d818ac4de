package segment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"audio-event-pipeline/internal/models"
)

// ErrDuplicateSegment is returned when two manifest entries share a segment id.
var ErrDuplicateSegment = errors.New("duplicate segment id")

// ErrEmptyPath is returned when a manifest entry has no audio path.
var ErrEmptyPath = errors.New("segment has no path")

// Manifest describes the segments produced by the splitting stage.
type Manifest struct {
	SourceAudio string           `json:"source_audio,omitempty"`
	SampleRate  int              `json:"sample_rate,omitempty"`
	Segments    []models.Segment `json:"segments"`
}

// ParseManifest decodes either a bare JSON array of segments or a Manifest object.
// Relative segment paths are resolved against baseDir when it is non-empty.
func ParseManifest(data []byte, baseDir string) (Manifest, error) {
	var m Manifest

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &m.Segments); err != nil {
			return Manifest{}, fmt.Errorf("decode segment list: %w", err)
		}
	} else if err := json.Unmarshal(trimmed, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	if err := Validate(m.Segments); err != nil {
		return Manifest{}, err
	}

	if baseDir != "" {
		for i := range m.Segments {
			if p := m.Segments[i].Path; !filepath.IsAbs(p) {
				m.Segments[i].Path = filepath.Join(baseDir, p)
			}
		}
	}
	return m, nil
}

// LoadManifest reads and parses the manifest at path. Relative segment paths
// are resolved against the manifest's directory.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, filepath.Dir(path))
}

// Validate checks that segment ids are unique and every segment has a path.
func Validate(segments []models.Segment) error {
	seen := make(map[int]struct{}, len(segments))
	for _, s := range segments {
		if _, ok := seen[s.SegmentID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateSegment, s.SegmentID)
		}
		seen[s.SegmentID] = struct{}{}
		if s.Path == "" {
			return fmt.Errorf("%w: segment %d", ErrEmptyPath, s.SegmentID)
		}
	}
	return nil
}

// IDs returns the segment ids in input order.
func IDs(segments []models.Segment) []int {
	ids := make([]int, len(segments))
	for i, s := range segments {
		ids[i] = s.SegmentID
	}
	return ids
}
