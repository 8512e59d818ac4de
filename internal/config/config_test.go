package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVICE_NAME", "PORT",
	"KFP_ENDPOINT", "KFP_NAMESPACE", "PIPELINE_NAME", "EXPERIMENT_NAME",
	"KFP_VERIFY_SSL", "KFP_SSL_CA_CERT", "KFP_REQUEST_TIMEOUT", "KFP_RUN_TIMEOUT_FLOOR",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_REGION",
	"INBOX_BUCKET", "OUTPUT_PREFIX", "AUDIO_EXTENSIONS",
	"INFERENCE_PROVIDER", "VOXTRAL_API_URL", "VOXTRAL_API_KEY", "VOXTRAL_MODEL",
	"INFERENCE_MAX_RETRIES", "INFERENCE_RETRY_DELAY", "INFERENCE_MAX_TOKENS",
	"INFERENCE_TIMEOUT", "INFERENCE_CONCURRENCY", "INFERENCE_RATE_LIMIT_PER_MIN",
	"STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
	"MILVUS_HOST", "MILVUS_PORT", "COLLECTION_NAME",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_RUNS", "KAFKA_TOPIC_TRANSCRIPTS", "KAFKA_PRINCIPAL",
	"LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		if old, ok := os.LookupEnv(v); ok {
			os.Unsetenv(v)
			t.Cleanup(func() { os.Setenv(v, old) })
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Port != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.Port)
	}
	if cfg.Filter.InboxBucket != "audio-inbox" {
		t.Errorf("expected default inbox bucket 'audio-inbox', got %s", cfg.Filter.InboxBucket)
	}
	if cfg.Filter.OutputPrefix != "transcripts/" {
		t.Errorf("expected default output prefix 'transcripts/', got %s", cfg.Filter.OutputPrefix)
	}
	if !reflect.DeepEqual(cfg.Filter.AudioExtensions, DefaultAudioExtensions) {
		t.Errorf("expected default audio extensions, got %v", cfg.Filter.AudioExtensions)
	}
	if cfg.Orchestration.VerifySSL {
		t.Error("expected TLS verification disabled by default")
	}
	if cfg.Orchestration.RequestTimeout != 60*time.Second {
		t.Errorf("expected default request timeout 60s, got %v", cfg.Orchestration.RequestTimeout)
	}
	if cfg.Orchestration.RunTimeout() != 90*time.Second {
		t.Errorf("expected run timeout floor 90s, got %v", cfg.Orchestration.RunTimeout())
	}
	if cfg.Inference.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Inference.MaxRetries)
	}
	if cfg.Inference.RetryDelay != 2*time.Second {
		t.Errorf("expected default retry delay 2s, got %v", cfg.Inference.RetryDelay)
	}
	if cfg.Inference.MaxTokens != 2048 {
		t.Errorf("expected default max tokens 2048, got %d", cfg.Inference.MaxTokens)
	}
	if !cfg.Inference.StubMode() {
		t.Error("expected stub mode without an API key")
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.Principal != "audio-event-handler" {
		t.Errorf("expected Kafka principal to default to service name, got %s", cfg.Kafka.Principal)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "9999")
	t.Setenv("KFP_VERIFY_SSL", "yes")
	t.Setenv("KFP_REQUEST_TIMEOUT", "120")
	t.Setenv("INBOX_BUCKET", "calls")
	t.Setenv("AUDIO_EXTENSIONS", ".mp3, .aac ,")
	t.Setenv("VOXTRAL_API_KEY", "secret")
	t.Setenv("INFERENCE_RETRY_DELAY", "500ms")
	t.Setenv("INFERENCE_CONCURRENCY", "4")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-0:9092,kafka-1:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Service.Port != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.Port)
	}
	if !cfg.Orchestration.VerifySSL {
		t.Error("expected TLS verification enabled")
	}
	if cfg.Orchestration.RunTimeout() != 120*time.Second {
		t.Errorf("expected run timeout to follow request timeout above floor, got %v", cfg.Orchestration.RunTimeout())
	}
	if cfg.Filter.InboxBucket != "calls" {
		t.Errorf("expected inbox bucket 'calls', got %s", cfg.Filter.InboxBucket)
	}
	if !reflect.DeepEqual(cfg.Filter.AudioExtensions, []string{".mp3", ".aac"}) {
		t.Errorf("unexpected audio extensions %v", cfg.Filter.AudioExtensions)
	}
	if cfg.Inference.StubMode() {
		t.Error("expected live mode with an API key")
	}
	if cfg.Inference.RetryDelay != 500*time.Millisecond {
		t.Errorf("expected retry delay 500ms, got %v", cfg.Inference.RetryDelay)
	}
	if cfg.Inference.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Inference.Concurrency)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected Kafka enabled with 2 brokers, got %v %v", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)

	t.Setenv("KFP_REQUEST_TIMEOUT", "soon")
	t.Setenv("KFP_VERIFY_SSL", "maybe")
	t.Setenv("INFERENCE_MAX_RETRIES", "many")
	t.Setenv("INFERENCE_RETRY_DELAY", "-3")
	t.Setenv("AUDIO_EXTENSIONS", " , ")

	cfg := Load()

	if cfg.Orchestration.RequestTimeout != 60*time.Second {
		t.Errorf("expected default request timeout on invalid input, got %v", cfg.Orchestration.RequestTimeout)
	}
	if cfg.Orchestration.VerifySSL {
		t.Error("expected default TLS verification on invalid input")
	}
	if cfg.Inference.MaxRetries != 3 {
		t.Errorf("expected default max retries on invalid input, got %d", cfg.Inference.MaxRetries)
	}
	if cfg.Inference.RetryDelay != 2*time.Second {
		t.Errorf("expected default retry delay on invalid input, got %v", cfg.Inference.RetryDelay)
	}
	if !reflect.DeepEqual(cfg.Filter.AudioExtensions, DefaultAudioExtensions) {
		t.Errorf("expected default extensions on empty list, got %v", cfg.Filter.AudioExtensions)
	}
}

func TestInferenceConfig_StubMode(t *testing.T) {
	tests := []struct {
		name     string
		cfg      InferenceConfig
		expected bool
	}{
		{"openai without key", InferenceConfig{Provider: "openai"}, true},
		{"openai with key", InferenceConfig{Provider: "openai", APIKey: "k"}, false},
		{"google uses ambient credentials", InferenceConfig{Provider: "google"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.StubMode(); got != tt.expected {
				t.Errorf("StubMode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"yes", "yes", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestEnvOrDefaultSeconds(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
	}{
		{"90", 90 * time.Second},
		{"2.5", 2500 * time.Millisecond},
		{"1m", time.Minute},
		{"bad", 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_SECONDS_VAR", tt.value)
			if got := envOrDefaultSeconds("TEST_SECONDS_VAR", 10*time.Second); got != tt.expected {
				t.Errorf("envOrDefaultSeconds(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}
