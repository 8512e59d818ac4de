package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"audio-event-pipeline/internal/config"
	"audio-event-pipeline/internal/events"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/service/transcription"
	"audio-event-pipeline/internal/storage"
)

type options struct {
	manifest    string
	workDir     string
	outputDir   string
	sourceAudio string
	sampleRate  int
	upload      bool
	bucket      string
	prefix      string
	verbose     bool
	publish     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "transcriber",
		Short: "Transcribe audio segments and assemble the transcript",
		Long: `Transcriber is the transcription step of the audio pipeline. It loads a
segment manifest (local path or s3:// URI), transcribes every segment with
bounded retries, assembles the successful segments into an ordered transcript
and writes it with its metadata, optionally uploading both to object storage.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := cfg.Observability.LogLevel
			if opts.verbose {
				level = "debug"
			}
			logging.Init(logging.Config{
				Level:      level,
				Format:     cfg.Observability.LogFormat,
				TimeFormat: time.RFC3339,
				Service:    "transcriber",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.manifest, "manifest", "m", "", "segment manifest path or s3://bucket/key (required)")
	f.StringVar(&opts.workDir, "work-dir", os.TempDir(), "directory for staged remote segments")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "output", "directory for transcript.txt and metadata.json")
	f.StringVar(&opts.sourceAudio, "source-audio", "", "source audio name recorded in metadata (default from manifest)")
	f.IntVar(&opts.sampleRate, "sample-rate", 0, "sample rate recorded in metadata (default from manifest)")
	f.BoolVar(&opts.upload, "upload", false, "upload outputs to object storage")
	f.StringVar(&opts.bucket, "bucket", cfg.Filter.InboxBucket, "bucket for uploaded outputs")
	f.StringVar(&opts.prefix, "prefix", cfg.Filter.OutputPrefix, "key prefix for uploaded outputs")
	f.BoolVar(&opts.publish, "publish", cfg.Kafka.Enabled, "publish a transcript-completed event")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func run(ctx context.Context, cfg *config.Configuration, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := transcription.NewEngine(ctx, cfg.Inference)
	if err != nil {
		return err
	}

	var store transcription.ObjectStore
	if opts.upload || storage.IsURI(opts.manifest) {
		client, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Region:    cfg.Storage.Region,
		})
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		store = client
	}

	var publisher transcription.TranscriptPublisher
	if opts.publish {
		p := events.New(&events.Config{
			Enabled:          cfg.Kafka.Enabled,
			Brokers:          cfg.Kafka.Brokers,
			TopicRuns:        cfg.Kafka.TopicRuns,
			TopicTranscripts: cfg.Kafka.TopicTranscripts,
			Principal:        cfg.Kafka.Principal,
		})
		defer p.Close()
		publisher = p
	}

	jobCfg := transcription.JobConfig{
		Manifest:    opts.manifest,
		WorkDir:     opts.workDir,
		OutputDir:   opts.outputDir,
		SourceAudio: opts.sourceAudio,
		SampleRate:  opts.sampleRate,
	}
	if opts.upload {
		jobCfg.UploadBucket = opts.bucket
		jobCfg.OutputPrefix = opts.prefix
	}

	res, err := transcription.NewJob(engine, store, publisher).Run(ctx, jobCfg)
	if err != nil {
		log.Error().Err(err).Int("failed", len(res.Failures)).Msg("Transcription job failed")
		return err
	}

	for _, f := range res.Failures {
		log.Warn().Int("segmentId", f.SegmentID).Str("error", f.Error).Msg("Segment left out of transcript")
	}
	log.Info().
		Str("transcript", res.TranscriptPath).
		Str("metadata", res.MetadataPath).
		Str("uri", res.TranscriptURI).
		Msg("Transcription job finished")
	return nil
}
