package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/service/segment"
	"audio-event-pipeline/internal/service/transcript"
	"audio-event-pipeline/internal/storage"
)

// ErrNothingTranscribed is returned when no segment of a batch succeeded.
var ErrNothingTranscribed = errors.New("no segments transcribed")

// ErrUnsafeSegmentPath is returned when a remote manifest names a segment outside the work directory.
var ErrUnsafeSegmentPath = errors.New("segment path escapes work directory")

// Output file names written to the job's output directory.
const (
	TranscriptFile = "transcript.txt"
	MetadataFile   = "metadata.json"
)

// ObjectStore moves manifests, segments and transcripts through object storage.
type ObjectStore interface {
	DownloadFile(ctx context.Context, bucket, key, localPath string) error
	UploadFile(ctx context.Context, localPath, bucket, key string) (string, error)
}

// TranscriptPublisher announces finished transcripts.
type TranscriptPublisher interface {
	PublishTranscriptCompleted(ctx context.Context, ev models.TranscriptCompletedEvent) error
}

// JobConfig describes one pipeline transcription step.
type JobConfig struct {
	// Manifest is a local path or an s3://bucket/key URI.
	Manifest string
	// WorkDir stages remote manifests and segments.
	WorkDir   string
	OutputDir string
	// SourceAudio and SampleRate override the manifest values when set.
	SourceAudio string
	SampleRate  int
	// UploadBucket enables uploading the outputs under OutputPrefix.
	UploadBucket string
	OutputPrefix string
}

// JobResult reports what a job produced.
type JobResult struct {
	Transcript     models.Transcript
	Failures       []models.TranscriptionResult
	TranscriptPath string
	MetadataPath   string
	TranscriptURI  string
}

// Job runs manifest -> engine -> assembler -> files -> upload -> event.
type Job struct {
	engine    *Engine
	store     ObjectStore
	publisher TranscriptPublisher
}

// NewJob creates a Job. store may be nil when neither the manifest nor the
// outputs live in object storage; publisher may be nil to skip the event.
func NewJob(engine *Engine, store ObjectStore, publisher TranscriptPublisher) *Job {
	return &Job{engine: engine, store: store, publisher: publisher}
}

// Run executes the job. Only successful segments are assembled.
func (j *Job) Run(ctx context.Context, cfg JobConfig) (JobResult, error) {
	logger := logging.WithComponent("transcription-job")

	manifest, err := j.loadManifest(ctx, cfg)
	if err != nil {
		return JobResult{}, err
	}
	if cfg.SourceAudio != "" {
		manifest.SourceAudio = cfg.SourceAudio
	}
	if cfg.SampleRate > 0 {
		manifest.SampleRate = cfg.SampleRate
	}

	successes, failures := j.engine.Transcribe(ctx, manifest.Segments)
	result := JobResult{Failures: failures}
	if len(successes) == 0 && len(manifest.Segments) > 0 {
		return result, fmt.Errorf("%w: %d of %d failed", ErrNothingTranscribed, len(failures), len(manifest.Segments))
	}

	result.Transcript = transcript.Assemble(successes, manifest.SourceAudio, manifest.SampleRate)
	result.TranscriptPath = filepath.Join(cfg.OutputDir, TranscriptFile)
	result.MetadataPath = filepath.Join(cfg.OutputDir, MetadataFile)

	if err := transcript.WriteFile(result.TranscriptPath, result.Transcript.Document); err != nil {
		return result, err
	}
	if err := transcript.WriteMetadata(result.MetadataPath, result.Transcript.Metadata); err != nil {
		return result, err
	}

	if cfg.UploadBucket != "" {
		if j.store == nil {
			return result, errors.New("upload requested without an object store")
		}
		prefix := OutputKeyPrefix(cfg.OutputPrefix, manifest.SourceAudio)
		uri, err := j.store.UploadFile(ctx, result.TranscriptPath, cfg.UploadBucket, prefix+TranscriptFile)
		if err != nil {
			return result, fmt.Errorf("upload transcript: %w", err)
		}
		if _, err := j.store.UploadFile(ctx, result.MetadataPath, cfg.UploadBucket, prefix+MetadataFile); err != nil {
			return result, fmt.Errorf("upload metadata: %w", err)
		}
		result.TranscriptURI = uri
	}

	meta := result.Transcript.Metadata
	logger.Info().
		Str("sourceAudio", meta.SourceAudio).
		Int("segments", meta.TotalSegments).
		Int("failed", len(failures)).
		Int("words", meta.TotalWords).
		Str("transcript", result.TranscriptPath).
		Str("uri", result.TranscriptURI).
		Msg("Transcript assembled")

	if j.publisher != nil {
		ev := models.TranscriptCompletedEvent{
			SourceAudio:    meta.SourceAudio,
			TranscriptURI:  result.TranscriptURI,
			Segments:       meta.TotalSegments,
			FailedSegments: len(failures),
			TotalWords:     meta.TotalWords,
			TotalDuration:  meta.TotalDuration,
		}
		if err := j.publisher.PublishTranscriptCompleted(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish transcript event")
		}
	}
	return result, nil
}

// loadManifest reads a local manifest, or stages a remote one together with
// its segment objects into the work directory.
func (j *Job) loadManifest(ctx context.Context, cfg JobConfig) (segment.Manifest, error) {
	if !storage.IsURI(cfg.Manifest) {
		return segment.LoadManifest(cfg.Manifest)
	}
	if j.store == nil {
		return segment.Manifest{}, errors.New("remote manifest without an object store")
	}

	bucket, key, err := storage.ParseURI(cfg.Manifest)
	if err != nil {
		return segment.Manifest{}, err
	}
	local := filepath.Join(cfg.WorkDir, path.Base(key))
	if err := j.store.DownloadFile(ctx, bucket, key, local); err != nil {
		return segment.Manifest{}, fmt.Errorf("download manifest: %w", err)
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return segment.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := segment.ParseManifest(data, "")
	if err != nil {
		return segment.Manifest{}, err
	}

	keyDir := path.Dir(key)
	for i, seg := range manifest.Segments {
		var objBucket, objKey, dest string
		switch {
		case storage.IsURI(seg.Path):
			objBucket, objKey, err = storage.ParseURI(seg.Path)
			if err != nil {
				return segment.Manifest{}, err
			}
			// Base names of URI segments may collide across prefixes; the id keeps them apart.
			dest = filepath.Join(cfg.WorkDir, "segments", fmt.Sprintf("%d_%s", seg.SegmentID, path.Base(objKey)))
		case filepath.IsAbs(seg.Path):
			continue
		default:
			rel := filepath.Clean(seg.Path)
			dest = filepath.Join(cfg.WorkDir, rel)
			if !within(cfg.WorkDir, dest) {
				return segment.Manifest{}, fmt.Errorf("%w: segment %d path %q", ErrUnsafeSegmentPath, seg.SegmentID, seg.Path)
			}
			objBucket, objKey = bucket, path.Join(keyDir, filepath.ToSlash(rel))
		}
		if err := j.store.DownloadFile(ctx, objBucket, objKey, dest); err != nil {
			return segment.Manifest{}, fmt.Errorf("download segment %d: %w", seg.SegmentID, err)
		}
		if manifest.Segments[i].Filename == "" {
			manifest.Segments[i].Filename = path.Base(objKey)
		}
		manifest.Segments[i].Path = dest
	}
	return manifest, nil
}

// within reports whether target lies inside dir.
func within(dir, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// OutputKeyPrefix returns "<prefix><audio stem>/" for uploaded outputs.
func OutputKeyPrefix(prefix, sourceAudio string) string {
	stem := strings.TrimSuffix(path.Base(filepath.ToSlash(sourceAudio)), path.Ext(sourceAudio))
	if sourceAudio == "" || stem == "" || stem == "." || stem == "/" {
		stem = "transcript"
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + stem + "/"
}
