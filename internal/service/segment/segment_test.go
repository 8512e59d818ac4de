package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseManifest_BareList(t *testing.T) {
	data := []byte(`[
		{"segment_id":0,"path":"seg_000.wav","start_time":0,"end_time":30,"duration":30,"filename":"seg_000.wav"},
		{"segment_id":1,"path":"/abs/seg_001.wav","start_time":30,"end_time":60,"duration":30}
	]`)

	m, err := ParseManifest(data, "/work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(m.Segments))
	}
	if m.Segments[0].Path != filepath.Join("/work", "seg_000.wav") {
		t.Errorf("expected relative path resolved, got %s", m.Segments[0].Path)
	}
	if m.Segments[1].Path != "/abs/seg_001.wav" {
		t.Errorf("expected absolute path kept, got %s", m.Segments[1].Path)
	}
	if m.Segments[1].EndTime != 60 {
		t.Errorf("expected end time 60, got %v", m.Segments[1].EndTime)
	}
}

func TestParseManifest_Object(t *testing.T) {
	data := []byte(`{"source_audio":"call.mp3","sample_rate":16000,"segments":[{"segment_id":4,"path":"a.wav"}]}`)

	m, err := ParseManifest(data, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.SourceAudio != "call.mp3" {
		t.Errorf("expected source audio call.mp3, got %s", m.SourceAudio)
	}
	if m.SampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", m.SampleRate)
	}
	if m.Segments[0].Path != "a.wav" {
		t.Errorf("expected path untouched without base dir, got %s", m.Segments[0].Path)
	}
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"duplicate ids", `[{"segment_id":1,"path":"a"},{"segment_id":1,"path":"b"}]`, ErrDuplicateSegment},
		{"missing path", `[{"segment_id":1}]`, ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.data), "")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseManifest_Malformed(t *testing.T) {
	if _, err := ParseManifest([]byte(`[{`), ""); err == nil {
		t.Error("expected error for malformed list")
	}
	if _, err := ParseManifest([]byte(`{oops`), ""); err == nil {
		t.Error("expected error for malformed object")
	}
}

func TestLoadManifest_ResolvesAgainstManifestDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.json")
	if err := os.WriteFile(path, []byte(`[{"segment_id":0,"path":"seg_000.wav"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Segments[0].Path != filepath.Join(dir, "seg_000.wav") {
		t.Errorf("expected path under manifest dir, got %s", m.Segments[0].Path)
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing manifest")
	}
}
