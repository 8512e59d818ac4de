// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration is the full process configuration.
type Configuration struct {
	Service       ServiceConfig
	Orchestration OrchestrationConfig
	Storage       StorageConfig
	Filter        FilterConfig
	Inference     InferenceConfig
	VectorStore   VectorStoreConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds settings for the inbound notification server.
type ServiceConfig struct {
	Name string
	Port string
}

// OrchestrationConfig holds pipeline-orchestration API settings.
type OrchestrationConfig struct {
	Endpoint       string
	Namespace      string
	PipelineName   string
	ExperimentName string
	VerifySSL      bool
	CACertPath     string
	RequestTimeout time.Duration
	// RunTimeoutFloor is the minimum timeout for run submission.
	RunTimeoutFloor time.Duration
}

// StorageConfig holds object-storage (MinIO/S3) settings.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
}

// FilterConfig holds the notification acceptance rules.
type FilterConfig struct {
	InboxBucket     string
	OutputPrefix    string
	AudioExtensions []string
}

// InferenceConfig holds speech-to-text inference settings.
type InferenceConfig struct {
	Provider        string // openai, google
	APIURL          string
	APIKey          string
	Model           string
	MaxRetries      int
	RetryDelay      time.Duration
	MaxTokens       int
	Timeout         time.Duration
	Concurrency     int
	RateLimitPerMin int
	LanguageCode    string
	SampleRateHz    int
}

// VectorStoreConfig holds the connection parameters forwarded to the pipeline.
type VectorStoreConfig struct {
	Host       string
	Port       string
	Collection string
}

// KafkaConfig holds lifecycle event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicRuns        string
	TopicTranscripts string
	Principal        string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// DefaultAudioExtensions are the object suffixes accepted for transcription.
var DefaultAudioExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg"}

// Load reads the configuration from the environment, loading a .env file first when present.
func Load() *Configuration {
	_ = godotenv.Load()

	serviceName := envOrDefault("SERVICE_NAME", "audio-event-handler")

	return &Configuration{
		Service: ServiceConfig{
			Name: serviceName,
			Port: envOrDefault("PORT", "8080"),
		},
		Orchestration: OrchestrationConfig{
			Endpoint:        envOrDefault("KFP_ENDPOINT", "https://ml-pipeline.kubeflow.svc.cluster.local:8888"),
			Namespace:       envOrDefault("KFP_NAMESPACE", "kubeflow"),
			PipelineName:    envOrDefault("PIPELINE_NAME", "audio-transcription-pipeline"),
			ExperimentName:  envOrDefault("EXPERIMENT_NAME", "Audio Transcription Runs"),
			VerifySSL:       envOrDefaultBool("KFP_VERIFY_SSL", false),
			CACertPath:      os.Getenv("KFP_SSL_CA_CERT"),
			RequestTimeout:  envOrDefaultSeconds("KFP_REQUEST_TIMEOUT", 60*time.Second),
			RunTimeoutFloor: envOrDefaultSeconds("KFP_RUN_TIMEOUT_FLOOR", 90*time.Second),
		},
		Storage: StorageConfig{
			Endpoint:  envOrDefault("MINIO_ENDPOINT", "http://minio.minio.svc.cluster.local:9000"),
			AccessKey: envOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: envOrDefault("MINIO_SECRET_KEY", "minioadmin123"),
			Region:    envOrDefault("MINIO_REGION", "us-east-1"),
		},
		Filter: FilterConfig{
			InboxBucket:     envOrDefault("INBOX_BUCKET", "audio-inbox"),
			OutputPrefix:    envOrDefault("OUTPUT_PREFIX", "transcripts/"),
			AudioExtensions: envOrDefaultList("AUDIO_EXTENSIONS", DefaultAudioExtensions),
		},
		Inference: InferenceConfig{
			Provider:        strings.ToLower(envOrDefault("INFERENCE_PROVIDER", "openai")),
			APIURL:          envOrDefault("VOXTRAL_API_URL", "https://api.scaleway.ai/v1"),
			APIKey:          os.Getenv("VOXTRAL_API_KEY"),
			Model:           envOrDefault("VOXTRAL_MODEL", "voxtral-small-24b-2507"),
			MaxRetries:      envOrDefaultInt("INFERENCE_MAX_RETRIES", 3),
			RetryDelay:      envOrDefaultSeconds("INFERENCE_RETRY_DELAY", 2*time.Second),
			MaxTokens:       envOrDefaultInt("INFERENCE_MAX_TOKENS", 2048),
			Timeout:         envOrDefaultSeconds("INFERENCE_TIMEOUT", 120*time.Second),
			Concurrency:     envOrDefaultInt("INFERENCE_CONCURRENCY", 1),
			RateLimitPerMin: envOrDefaultInt("INFERENCE_RATE_LIMIT_PER_MIN", 0),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:    envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
		},
		VectorStore: VectorStoreConfig{
			Host:       envOrDefault("MILVUS_HOST", "milvus.milvus.svc.cluster.local"),
			Port:       envOrDefault("MILVUS_PORT", "19530"),
			Collection: envOrDefault("COLLECTION_NAME", "earnings_call_transcripts"),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicRuns:        envOrDefault("KAFKA_TOPIC_RUNS", "audio.pipeline.runs"),
			TopicTranscripts: envOrDefault("KAFKA_TOPIC_TRANSCRIPTS", "audio.pipeline.transcripts"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", serviceName),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

// RunTimeout is the timeout applied to run submission.
func (o OrchestrationConfig) RunTimeout() time.Duration {
	if o.RequestTimeout > o.RunTimeoutFloor {
		return o.RequestTimeout
	}
	return o.RunTimeoutFloor
}

// StubMode reports whether transcription runs without an inference credential.
func (i InferenceConfig) StubMode() bool {
	return i.Provider != "google" && i.APIKey == ""
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// envOrDefaultSeconds accepts either a Go duration ("90s") or a plain number of seconds ("90", "2.5").
func envOrDefaultSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
