// Event viewer streams pipeline lifecycle events from Kafka to a browser over WebSocket.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"audio-event-pipeline/internal/config"
	"audio-event-pipeline/internal/observability/logging"
)

//go:embed static/*
var staticFiles embed.FS

// pipelineEvent is what the browser receives: the raw event plus its topic.
type pipelineEvent struct {
	Topic     string          `json:"topic"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// hub fans events out to every connected client.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("Viewer connected")
}

func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("Viewer disconnected")
}

func (h *hub) broadcast(ev pipelineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("WebSocket write failed")
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}
		h.add(conn)

		go func() {
			defer h.remove(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}

// consume reads one topic from partition 0, starting an hour back.
func consume(ctx context.Context, h *hub, brokers []string, topic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-time.Hour)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not seek to last hour, reading from current offset")
	}
	log.Info().Str("topic", topic).Msg("Consuming pipeline events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read failed")
			time.Sleep(time.Second)
			continue
		}

		ev := pipelineEvent{Topic: topic, Payload: msg.Value}
		for _, hdr := range msg.Headers {
			if hdr.Key == "eventType" {
				ev.EventType = string(hdr.Value)
			}
		}
		if !json.Valid(msg.Value) {
			log.Warn().Str("topic", topic).Int64("offset", msg.Offset).Msg("Skipping non-JSON event")
			continue
		}

		log.Debug().Str("topic", topic).Str("eventType", ev.EventType).Str("key", string(msg.Key)).Msg("Event received")
		h.broadcast(ev)
	}
}

func main() {
	cfg := config.Load()

	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", strings.Join(cfg.Kafka.Brokers, ","), "Kafka brokers (comma-separated)")
	topicRuns := flag.String("topic-runs", cfg.Kafka.TopicRuns, "Run lifecycle topic")
	topicTranscripts := flag.String("topic-transcripts", cfg.Kafka.TopicTranscripts, "Transcript lifecycle topic")
	flag.Parse()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     "console",
		TimeFormat: time.Kitchen,
		Service:    "event-viewer",
	})

	if *brokers == "" {
		*brokers = "localhost:9092"
	}
	brokerList := strings.Split(*brokers, ",")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	go consume(ctx, h, brokerList, *topicRuns)
	go consume(ctx, h, brokerList, *topicTranscripts)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Static assets missing")
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(h))

	server := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Strs("brokers", brokerList).
		Strs("topics", []string{*topicRuns, *topicTranscripts}).
		Msg("Event viewer starting")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Event viewer server failed")
	}
}
