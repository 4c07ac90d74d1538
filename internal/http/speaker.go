package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
	"ktv-subtitle-service/internal/service/speaker"
)

// minSpeakerFrame is 0.05s of 16kHz 16-bit audio; shorter frames are ignored.
const minSpeakerFrame = 1600

const maxAnalyzeBody = 10 << 20

type speakerStatus struct {
	Status         string  `json:"status"`
	Threshold      float64 `json:"threshold"`
	CurrentSpeaker int     `json:"current_speaker"`
}

func (h *handlers) speakerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, speakerStatus{
		Status:         "ready",
		Threshold:      h.detector.Threshold(),
		CurrentSpeaker: h.detector.Speaker(),
	})
}

func (h *handlers) speakerReset(w http.ResponseWriter, _ *http.Request) {
	h.detector.Reset()
	writeJSON(w, http.StatusOK, speakerStatus{
		Status:         "reset",
		Threshold:      h.detector.Threshold(),
		CurrentSpeaker: h.detector.Speaker(),
	})
}

// speakerAnalyze decides a speaker change for one PCM body
// (application/octet-stream, 16-bit mono).
func (h *handlers) speakerAnalyze(w http.ResponseWriter, r *http.Request) {
	pcm, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAnalyzeBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio body too large")
		return
	}
	if len(pcm) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio body")
		return
	}
	dec, err := h.detector.Process(r.Context(), pcm)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// speakerWS answers every binary PCM frame with a speaker decision. With
// ?window=true frames are buffered and the most recent window is analysed
// once per step instead.
func (h *handlers) speakerWS(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithConnection("speaker", r.RemoteAddr)
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	start := time.Now()
	metrics.DefaultMetrics.RecordStreamStart("speaker")
	defer func() {
		metrics.DefaultMetrics.RecordStreamEnd("speaker", true, time.Since(start).Seconds())
	}()

	detector := speaker.NewDetector(h.app.Embedder, h.app.SpeakerConfig())
	var window *speaker.Window
	if queryBool(r, "window", false) {
		window = speaker.NewWindow(h.app.Cfg.Speaker.Window, h.app.Cfg.Speaker.Step, h.app.Cfg.STT.SampleRateHz)
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger.Info().Bool("window", window != nil).Msg("speaker client connected")
	frames := 0
	for {
		typ, data, err := raw.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("speaker read ended")
			}
			break
		}
		if typ != websocket.BinaryMessage || len(data) < minSpeakerFrame {
			continue
		}
		frames++

		segment := data
		if window != nil {
			window.Add(data)
			next, ok := window.Next()
			if !ok {
				continue
			}
			segment = next
		}

		dec, err := detector.Process(ctx, segment)
		if err != nil && ctx.Err() != nil {
			break
		}
		// Embedding failures still answer with the unchanged speaker.
		if err := conn.writeJSON(dec); err != nil {
			logger.Debug().Err(err).Msg("speaker client gone")
			break
		}
	}
	logger.Info().Int("frames", frames).Int("speaker", detector.Speaker()).Msg("speaker client disconnected")
}
