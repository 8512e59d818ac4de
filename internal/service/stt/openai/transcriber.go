// Package openai transcribes segments through an OpenAI-compatible chat
// completions endpoint that accepts audio input (Voxtral on Scaleway or vLLM).
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"audio-event-pipeline/internal/service/retry"
	"audio-event-pipeline/internal/service/stt"
)

// ErrEmptyResponse is returned when the endpoint answers without choices.
var ErrEmptyResponse = errors.New("inference response has no choices")

// ErrUnsupportedFormat is returned for segment files the input-audio part cannot carry.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// inputAudioFormats maps segment extensions to input-audio formats. The
// chat completions input-audio part only carries wav and mp3; segments in
// other containers have to be re-encoded upstream.
var inputAudioFormats = map[string]string{
	".wav":  "wav",
	".wave": "wav",
	".mp3":  "mp3",
}

// Config holds the inference endpoint settings.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	MaxTokens       int
	Timeout         time.Duration
	RateLimitPerMin int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Model:     "voxtral-small-24b-2507",
		MaxTokens: 2048,
		Timeout:   120 * time.Second,
	}
}

// Transcriber implements stt.Transcriber against a remote inference endpoint.
type Transcriber struct {
	client    openai.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
	readFile  func(string) ([]byte, error)
}

// New creates a remote transcriber. SDK retries are disabled; the caller's
// retry policy is the only retry layer.
func New(cfg Config) *Transcriber {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}

	t := &Transcriber{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		readFile:  os.ReadFile,
	}
	if cfg.RateLimitPerMin > 0 {
		// Tokens per second = RPM / 60.
		t.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), 1)
	}
	return t
}

// Name returns the provider name.
func (t *Transcriber) Name() string {
	return stt.ProviderOpenAI
}

// Transcribe sends the segment audio as a single input-audio message part and
// returns the first choice's content.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	format, err := audioFormat(req.Segment.Path)
	if err != nil {
		return "", retry.Permanent(err)
	}
	audio, err := t.readFile(req.Segment.Path)
	if err != nil {
		return "", fmt.Errorf("read segment audio: %w", err)
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	part := openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
		Data:   base64.StdEncoding.EncodeToString(audio),
		Format: format,
	})

	res, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{part}),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(t.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Message.Content, nil
}

// audioFormat maps a segment file extension to the input-audio format.
func audioFormat(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if format, ok := inputAudioFormats[ext]; ok {
		return format, nil
	}
	if ext == "" {
		ext = "no extension"
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, filepath.Base(path), ext)
}
