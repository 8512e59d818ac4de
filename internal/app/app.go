package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"audio-event-pipeline/internal/config"
	"audio-event-pipeline/internal/events"
	"audio-event-pipeline/internal/observability/logging"
	"audio-event-pipeline/internal/observability/metrics"
	"audio-event-pipeline/internal/orchestration"
	"audio-event-pipeline/internal/schema"
	"audio-event-pipeline/internal/service/audio"
	"audio-event-pipeline/internal/service/resolver"
	"audio-event-pipeline/internal/service/trigger"
)

// ErrNotReady is returned by Ready until both orchestration resources are resolved.
var ErrNotReady = errors.New("not ready")

// Application holds process-wide state for the notification service.
type Application struct {
	StartupTime   time.Time
	Logger        zerolog.Logger
	Cfg           *config.Configuration
	Metrics       *metrics.Metrics
	Publisher     *events.Publisher
	Resolver      *resolver.Cache
	Notifications *audio.Handler
}

// New constructs the Application and wires the notification path:
// validator -> trigger -> resolver cache -> orchestration client.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicRuns:        cfg.Kafka.TopicRuns,
		TopicTranscripts: cfg.Kafka.TopicTranscripts,
		Principal:        cfg.Kafka.Principal,
	})

	client := orchestration.New(orchestration.Config{
		Endpoint:   cfg.Orchestration.Endpoint,
		VerifySSL:  cfg.Orchestration.VerifySSL,
		CACertPath: cfg.Orchestration.CACertPath,
		Timeout:    cfg.Orchestration.RequestTimeout,
	})

	a.Resolver = resolver.New(client, resolver.Config{
		Namespace:      cfg.Orchestration.Namespace,
		ExperimentName: cfg.Orchestration.ExperimentName,
		PipelineName:   cfg.Orchestration.PipelineName,
		LookupTimeout:  cfg.Orchestration.RequestTimeout,
	})

	tr := trigger.New(a.Resolver, client, a.Publisher, trigger.Parameters{
		StorageEndpoint:  cfg.Storage.Endpoint,
		StorageAccessKey: cfg.Storage.AccessKey,
		StorageSecretKey: cfg.Storage.SecretKey,
		InferenceURL:     cfg.Inference.APIURL,
		InferenceKey:     cfg.Inference.APIKey,
		InferenceModel:   cfg.Inference.Model,
		VectorHost:       cfg.VectorStore.Host,
		VectorPort:       cfg.VectorStore.Port,
		Collection:       cfg.VectorStore.Collection,
	}, cfg.Orchestration.RunTimeout())

	validator := schema.New(cfg.Filter.InboxBucket, cfg.Filter.OutputPrefix, cfg.Filter.AudioExtensions)
	a.Notifications = audio.NewHandler(validator, tr)

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()
	appLogger.Info().
		Str("kfpEndpoint", cfg.Orchestration.Endpoint).
		Str("pipeline", cfg.Orchestration.PipelineName).
		Str("experiment", cfg.Orchestration.ExperimentName).
		Str("inboxBucket", cfg.Filter.InboxBucket).
		Msg("Audio event handler application created")
	return a
}

// setupLogger configures the global zerolog logger for the service.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Service:    a.Cfg.Service.Name,
	})
	a.Logger = logging.WithComponent("application")

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
// Resource resolution is attempted eagerly; failures are retried on the first notification.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Audio event handler starting")

	if _, err := a.Resolver.ResolveExperiment(ctx); err != nil {
		startLogger.Warn().Err(err).Msg("Experiment not resolved at startup")
	}
	if _, err := a.Resolver.ResolvePipeline(ctx); err != nil {
		startLogger.Warn().Err(err).Msg("Pipeline not resolved at startup")
	}
	return nil
}

// Ready reports whether notifications can be turned into runs. Unresolved
// resources are looked up again, so a slow orchestration API at startup does
// not keep the service unready.
func (a *Application) Ready(ctx context.Context) error {
	if a.Resolver == nil {
		return fmt.Errorf("%w: resolver not configured", ErrNotReady)
	}
	if _, err := a.Resolver.ResolveExperiment(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	if _, err := a.Resolver.ResolvePipeline(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return nil
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Failed to close publisher")
		}
	}
	shutdownLogger.Info().Msg("Audio event handler shutting down")
}
