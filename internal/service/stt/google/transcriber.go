// Package google provides a Google Cloud Speech-to-Text transcriber.
package google

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"audio-event-pipeline/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode string
	SampleRateHz int
	// AudioEncoding overrides the encoding derived from the file extension.
	AudioEncoding string
}

// DefaultConfig returns the default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode: "en-US",
		SampleRateHz: 16000,
	}
}

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Transcriber implements stt.Transcriber using synchronous recognition.
type Transcriber struct {
	client    *speech.Client
	recognize recognizeFunc
	cfg       Config
	readFile  func(string) ([]byte, error)
}

// New creates a Google STT transcriber.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Transcriber, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	t := newTranscriber(cfg, func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return c.Recognize(ctx, req)
	})
	t.client = c
	return t, nil
}

func newTranscriber(cfg Config, recognize recognizeFunc) *Transcriber {
	def := DefaultConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.SampleRateHz <= 0 {
		cfg.SampleRateHz = def.SampleRateHz
	}
	return &Transcriber{
		recognize: recognize,
		cfg:       cfg,
		readFile:  os.ReadFile,
	}
}

// Name returns the provider name.
func (t *Transcriber) Name() string {
	return stt.ProviderGoogle
}

// Transcribe recognizes the segment file and joins the top alternative of each result.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	audio, err := t.readFile(req.Segment.Path)
	if err != nil {
		return "", fmt.Errorf("read segment audio: %w", err)
	}

	resp, err := t.recognize(ctx, &speechpb.RecognizeRequest{
		Config: t.recognitionConfig(req.Segment.Path),
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	var parts []string
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the underlying client.
func (t *Transcriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

func (t *Transcriber) recognitionConfig(path string) *speechpb.RecognitionConfig {
	enc := parseAudioEncoding(t.cfg.AudioEncoding)
	if t.cfg.AudioEncoding == "" {
		enc = encodingForPath(path)
	}
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		LanguageCode:               t.cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	// Self-describing containers carry their own sample rate.
	if enc == speechpb.RecognitionConfig_LINEAR16 || enc == speechpb.RecognitionConfig_MULAW {
		cfg.SampleRateHertz = int32(t.cfg.SampleRateHz)
	}
	return cfg
}

// encodingForPath picks the encoding from the file extension. WAV and MP3
// headers are detected by the service when the encoding is unspecified.
func encodingForPath(path string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != 0 {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}
