package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ktv-subtitle-service/internal/audio"
	"ktv-subtitle-service/internal/models"
	"ktv-subtitle-service/internal/observability/logging"
	"ktv-subtitle-service/internal/observability/metrics"
	"ktv-subtitle-service/internal/service/session"
)

const (
	wsWriteWait = 10 * time.Second
	// endOfAudio is the text frame a live client sends after its last frame.
	endOfAudio = "EOS"
)

type controlMessage struct {
	Action string `json:"action"`
	Type   string `json:"type"`
}

func (m controlMessage) is(name string) bool {
	return m.Action == name || m.Type == name
}

// wsConn serializes writes from the event relay and the control replies.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// live streams PCM pushed over a WebSocket into a session. Binary frames
// carry 16-bit mono PCM; the text frame "EOS" ends the audio. Events are
// written back as JSON.
func (h *handlers) live(w http.ResponseWriter, r *http.Request) {
	engine := h.app.DefaultEngine(r.URL.Query().Get("engine"))
	if _, err := h.app.Registry.Get(engine); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := logging.WithConnection("live", r.RemoteAddr)
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	push := audio.NewPushStream()
	sess, err := h.app.Sessions.Start(ctx, session.Request{
		Engine: engine,
		// Live audio already arrives at playback speed.
		RealTime:            true,
		Diarization:         queryBool(r, "enable_diarization", true),
		DetectSpeakerChange: queryBool(r, "detect_speaker_change", false),
		Previews:            queryBool(r, "previews", false),
		Source:              "websocket:" + r.RemoteAddr,
	}, push)
	if err != nil {
		_ = push.Close()
		_ = conn.writeJSON(models.ErrorEvent("", string(session.KindProcessing), err.Error()))
		conn.close(websocket.CloseInternalServerErr, "session failed to start")
		return
	}
	logger = logger.With().Str("sessionId", sess.ID()).Str("engine", sess.Engine()).Logger()

	start := time.Now()
	metrics.DefaultMetrics.RecordStreamStart("live")
	defer func() {
		metrics.DefaultMetrics.RecordStreamEnd("live", sess.Err() == nil, time.Since(start).Seconds())
	}()

	if err := conn.writeJSON(models.Event{Type: models.EventInit, SessionID: sess.ID(), Message: sess.Engine()}); err != nil {
		_ = sess.Close()
		return
	}

	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		for ev := range sess.Events() {
			if err := conn.writeJSON(ev); err != nil {
				logger.Debug().Err(err).Msg("live client gone")
				cancel()
				return
			}
		}
		conn.close(websocket.CloseNormalClosure, "session finished")
		// Bound the wait for the client's close reply.
		_ = raw.SetReadDeadline(time.Now().Add(wsWriteWait))
	}()

	if ended := readLive(raw, conn, push, logger); !ended {
		// The client vanished before the end of its audio.
		cancel()
		_ = push.Close()
	}
	<-relayed
	<-sess.Done()
	logger.Info().Int64("bytes", push.Written()).Str("state", sess.State().String()).Msg("live connection closed")
}

// readLive pumps client frames into push until the connection closes and
// reports whether the audio was ended by the client or the session. After
// the end it keeps answering pings.
func readLive(raw *websocket.Conn, conn *wsConn, push *audio.PushStream, logger zerolog.Logger) (ended bool) {
	for {
		typ, data, err := raw.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("live read ended")
			}
			return
		}
		switch typ {
		case websocket.BinaryMessage:
			if ended {
				continue
			}
			if _, err := push.Write(data); err != nil {
				if !errors.Is(err, audio.ErrStreamClosed) {
					logger.Warn().Err(err).Msg("failed to push audio")
				}
				ended = true
			}
		case websocket.TextMessage:
			text := strings.TrimSpace(string(data))
			if text == endOfAudio {
				if !ended {
					ended = true
					_ = push.CloseWrite()
				}
				continue
			}
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				logger.Debug().Str("message", text).Msg("ignoring unknown text frame")
				continue
			}
			switch {
			case msg.is("ping"):
				_ = conn.writeJSON(models.Event{Type: models.EventPong})
			case msg.is("stop"):
				if !ended {
					ended = true
					_ = push.CloseWrite()
				}
			}
		}
	}
}
