// Package http exposes the subtitle service over HTTP: SSE and WebSocket
// streaming, speaker-change detection, archive export and the dictionary
// admin API.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ktv-subtitle-service/internal/app"
	"ktv-subtitle-service/internal/service/speaker"
)

type handlers struct {
	app      *app.Application
	upgrader websocket.Upgrader
	// detector serves the REST speaker routes; WebSocket clients get their own.
	detector *speaker.Detector
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app: application,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		detector: speaker.NewDetector(application.Embedder, application.SpeakerConfig()),
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		// Health endpoints
		r.Get("/liveness", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		r.Get("/readiness", func(w http.ResponseWriter, _ *http.Request) {
			if !application.Ready() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready"))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})

		r.Get("/engines", h.engines)

		r.Route("/realtime", func(r chi.Router) {
			r.Post("/stream", h.stream)
			r.Get("/ws", h.live)
		})
		r.Get("/stream/detect", h.detect)

		r.Route("/speaker", func(r chi.Router) {
			r.Get("/status", h.speakerStatus)
			r.Post("/reset", h.speakerReset)
			r.Post("/analyze", h.speakerAnalyze)
			r.Get("/ws", h.speakerWS)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.listSessions)
			r.Get("/active", h.activeSessions)
			r.Get("/{id}", h.getSession)
			r.Delete("/{id}", h.stopSession)
			r.Get("/{id}/export", h.exportSession)
		})

		r.Route("/admin", h.adminRoutes)
	})

	return r
}

type enginesResponse struct {
	Default string   `json:"default"`
	Engines []string `json:"engines"`
}

func (h *handlers) engines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, enginesResponse{
		Default: h.app.DefaultEngine(""),
		Engines: h.app.Registry.Names(),
	})
}
