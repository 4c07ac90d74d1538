package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
	"ktv-subtitle-service/internal/service/session"
	"ktv-subtitle-service/internal/service/stt"
)

type streamRequest struct {
	Source              string  `json:"source"`
	Engine              string  `json:"engine"`
	SyncMode            bool    `json:"sync_mode"`
	StartOffset         float64 `json:"start_offset"`
	EnableDiarization   bool    `json:"enable_diarization"`
	DetectSpeakerChange bool    `json:"detect_speaker_change"`
	Previews            bool    `json:"previews"`
}

// stream transcribes a media file or URL and relays the session events as
// server-sent events until complete or error.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if req.StartOffset < 0 {
		writeError(w, http.StatusBadRequest, "start_offset must not be negative")
		return
	}
	engine := h.app.DefaultEngine(req.Engine)
	if _, err := h.app.Registry.Get(engine); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if status, msg := checkSource(req.Source); status != http.StatusOK {
		writeError(w, status, msg)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	logger := logging.WithConnection("stream", r.RemoteAddr)
	ctx := r.Context()

	src, err := h.app.Sources.Open(ctx, req.Source, req.StartOffset)
	if err != nil {
		logger.Error().Err(err).Str("source", req.Source).Msg("failed to open audio source")
		writeError(w, http.StatusBadGateway, "failed to open audio source")
		return
	}
	sess, err := h.app.Sessions.Start(ctx, session.Request{
		Engine:              engine,
		RealTime:            req.SyncMode,
		StartOffset:         req.StartOffset,
		Diarization:         req.EnableDiarization,
		DetectSpeakerChange: req.DetectSpeakerChange,
		Previews:            req.Previews,
		Source:              req.Source,
	}, src)
	if err != nil {
		_ = src.Close()
		writeError(w, startErrorStatus(err), err.Error())
		return
	}
	start := time.Now()
	metrics.DefaultMetrics.RecordStreamStart("stream")
	defer func() {
		<-sess.Done()
		metrics.DefaultMetrics.RecordStreamEnd("stream", sess.Err() == nil, time.Since(start).Seconds())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.ID())
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, models.Event{Type: models.EventInit, SessionID: sess.ID(), Message: sess.Engine()}); err != nil {
		return
	}
	flusher.Flush()

	for ev := range sess.Events() {
		if err := writeSSE(w, ev); err != nil {
			logger.Debug().Err(err).Str("sessionId", sess.ID()).Msg("SSE client gone")
			_ = sess.Close()
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w io.Writer, ev models.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// checkSource rejects sources that cannot be decoded directly.
func checkSource(source string) (int, string) {
	typ, desc := audio.DetectStreamType(source)
	switch {
	case typ.Decodable():
		return http.StatusOK, ""
	case typ == audio.StreamUnknown:
		if _, err := os.Stat(source); errors.Is(err, fs.ErrNotExist) {
			return http.StatusNotFound, "source file not found"
		}
		return http.StatusOK, ""
	default:
		return http.StatusUnprocessableEntity, desc + " must be resolved to a media URL first"
	}
}

func startErrorStatus(err error) int {
	if errors.Is(err, stt.ErrUnknownEngine) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type detectResponse struct {
	URL            string `json:"url"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	Supported      bool   `json:"supported"`
	Decodable      bool   `json:"decodable"`
	RequiresBuffer bool   `json:"requires_buffer"`
	BufferSeconds  int    `json:"buffer_seconds"`
}

func (h *handlers) detect(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	typ, desc := audio.DetectStreamType(url)
	writeJSON(w, http.StatusOK, detectResponse{
		URL:            url,
		Type:           string(typ),
		Description:    desc,
		Supported:      typ != audio.StreamUnknown,
		Decodable:      typ.Decodable(),
		RequiresBuffer: typ == audio.StreamYouTubeLive || typ == audio.StreamHLS || typ == audio.StreamRTMP,
		BufferSeconds:  3,
	})
}
