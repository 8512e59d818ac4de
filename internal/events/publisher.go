// Package events publishes pipeline lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"audio-event-pipeline/internal/models"
	"audio-event-pipeline/internal/observability/metrics"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes lifecycle events to separate Kafka topics.
type Publisher struct {
	writerRuns        messageWriter
	writerTranscripts messageWriter
	principal         string
	topicRuns         string
	topicTranscripts  string
	enabled           bool
	metrics           *metrics.Metrics
	now               func() time.Time
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicRuns        string
	TopicTranscripts string
	Principal        string
	Enabled          bool
}

// New creates a Kafka event publisher. A nil or disabled config yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m, now: time.Now}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicRuns:        cfg.TopicRuns,
			topicTranscripts: cfg.TopicTranscripts,
			metrics:          m,
			now:              time.Now,
		}
	}

	// Longer dial timeout for DNS resolution inside Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRuns", cfg.TopicRuns).
		Str("topicTranscripts", cfg.TopicTranscripts).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRuns:        newWriter(cfg.Brokers, cfg.TopicRuns, transport),
		writerTranscripts: newWriter(cfg.Brokers, cfg.TopicTranscripts, transport),
		principal:         cfg.Principal,
		topicRuns:         cfg.TopicRuns,
		topicTranscripts:  cfg.TopicTranscripts,
		enabled:           true,
		metrics:           m,
		now:               time.Now,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// WithMetrics replaces the metrics sink.
func (p *Publisher) WithMetrics(m *metrics.Metrics) *Publisher {
	p.metrics = m
	return p
}

// PublishRunTriggered publishes ev to the runs topic keyed by object key.
// EventID, EventType and Timestamp are filled in when empty.
func (p *Publisher) PublishRunTriggered(ctx context.Context, ev models.RunTriggeredEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.EventType = models.EventTypeRunTriggered
	if ev.Timestamp == 0 {
		ev.Timestamp = p.now().UnixMilli()
	}
	return p.publish(ctx, p.writerRuns, p.topicRuns, ev.EventType, ev.ObjectKey, ev)
}

// PublishTranscriptCompleted publishes ev to the transcripts topic keyed by source audio.
func (p *Publisher) PublishTranscriptCompleted(ctx context.Context, ev models.TranscriptCompletedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	ev.EventType = models.EventTypeTranscriptCompleted
	if ev.Timestamp == 0 {
		ev.Timestamp = p.now().UnixMilli()
	}
	return p.publish(ctx, p.writerTranscripts, p.topicTranscripts, ev.EventType, ev.SourceAudio, ev)
}

func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerRuns != nil {
		if e := p.writerRuns.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing runs writer")
			err = e
		}
	}
	if p.writerTranscripts != nil {
		if e := p.writerTranscripts.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transcripts writer")
			err = e
		}
	}
	return err
}
