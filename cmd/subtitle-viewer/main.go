// Command subtitle-viewer consumes the subtitle topics from Kafka and shows
// them live in a browser over a WebSocket.
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
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/schema"
)

//go:embed static/*
var staticFiles embed.FS

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// consume forwards every valid subtitle event from r to the hub until ctx
// ends.
func consume(ctx context.Context, hub *Hub, r messageReader, topic string) {
	logger := hub.logger.With().Str("topic", topic).Logger()
	validator := schema.New()
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("kafka read failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		var event models.SubtitleFinal
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn().Err(err).Msg("ignoring malformed event")
			continue
		}
		if event.EventType == models.EventTypeSubtitleFinal {
			if err := validator.Validate(event); err != nil {
				logger.Warn().Err(err).Msg("ignoring invalid subtitle")
				continue
			}
		}
		logger.Debug().
			Str("eventType", event.EventType).
			Str("sessionId", event.SessionID).
			Str("text", truncate(event.Text, 40)).
			Msg("event received")

		select {
		case hub.broadcast <- event:
		case <-ctx.Done():
			return
		}
	}
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func newReader(brokers, topic string) *kafka.Reader {
	// Partition reader without a consumer group: every viewer sees every event.
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
}

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicFinal := flag.String("topic-final", "ktv.subtitle.final", "Final subtitle topic")
	topicPreview := flag.String("topic-preview", "ktv.subtitle.preview", "Preview subtitle topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	logging.Init(logging.DefaultConfig())
	logger := logging.WithComponent("subtitle-viewer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(logger)
	go hub.run(ctx)

	for _, topic := range []string{*topicFinal, *topicPreview} {
		if topic == "" {
			continue
		}
		reader := newReader(*brokers, topic)
		defer reader.Close()
		if err := reader.SetOffsetAt(ctx, time.Now().Add(-*since)); err != nil {
			logger.Warn().Err(err).Str("topic", topic).Msg("failed to seek, reading from the start")
		}
		go consume(ctx, hub, reader, topic)
	}

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("static files missing")
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(staticFS)))
	mux.HandleFunc("/ws", wsHandler(hub))

	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("url", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicFinal, *topicPreview}).
		Msg("subtitle viewer starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
