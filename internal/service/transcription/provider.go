package transcription

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"audio-event-pipeline/internal/config"
	"audio-event-pipeline/internal/service/stt"
	"audio-event-pipeline/internal/service/stt/google"
	"audio-event-pipeline/internal/service/stt/openai"
	"audio-event-pipeline/internal/service/stt/stub"
)

// NewTranscriber selects the transcription strategy once from configuration:
// Google Speech when requested, the remote inference endpoint when a
// credential is present, and the deterministic stub otherwise.
func NewTranscriber(ctx context.Context, cfg config.InferenceConfig) (stt.Transcriber, error) {
	switch {
	case cfg.Provider == stt.ProviderGoogle:
		t, err := google.New(ctx, google.Config{
			LanguageCode: cfg.LanguageCode,
			SampleRateHz: cfg.SampleRateHz,
		})
		if err != nil {
			return nil, fmt.Errorf("create google speech client: %w", err)
		}
		return t, nil

	case cfg.StubMode():
		log.Warn().Msg("No inference API key supplied, running in demo mode with stubbed transcriptions")
		return stub.New(), nil

	default:
		return openai.New(openai.Config{
			BaseURL:         cfg.APIURL,
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         cfg.Timeout,
			RateLimitPerMin: cfg.RateLimitPerMin,
		}), nil
	}
}

// NewEngine builds the transcriber for cfg and wraps it in an Engine.
func NewEngine(ctx context.Context, cfg config.InferenceConfig) (*Engine, error) {
	t, err := NewTranscriber(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(t, Options{
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Concurrency: cfg.Concurrency,
	}), nil
}
