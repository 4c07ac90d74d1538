package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"ktv-subtitle-service/internal/archive"
	"ktv-subtitle-service/internal/service/session"
	"ktv-subtitle-service/internal/subtitle"
)

const defaultSessionLimit = 50

type activeSession struct {
	ID        string    `json:"id"`
	Engine    string    `json:"engine"`
	Source    string    `json:"source"`
	RealTime  bool      `json:"sync_mode"`
	StartedAt time.Time `json:"started_at"`
}

type archivedSession struct {
	ID        string     `json:"id"`
	Engine    string     `json:"engine"`
	Source    string     `json:"source"`
	State     string     `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Subtitles int        `json:"subtitles"`
}

func toArchived(s archive.Session) archivedSession {
	return archivedSession{
		ID:        s.ID,
		Engine:    s.Engine,
		Source:    s.Source,
		State:     s.State,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Subtitles: s.Subtitles,
	}
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := h.app.Archive.Sessions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]archivedSession, 0, len(list))
	for _, s := range list {
		out = append(out, toArchived(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) activeSessions(w http.ResponseWriter, _ *http.Request) {
	infos := h.app.Sessions.List()
	out := make([]activeSession, 0, len(infos))
	for _, info := range infos {
		out = append(out, toActive(info))
	}
	writeJSON(w, http.StatusOK, out)
}

func toActive(info session.Info) activeSession {
	return activeSession{
		ID:        info.ID,
		Engine:    info.Engine,
		Source:    info.Request.Source,
		RealTime:  info.Request.RealTime,
		StartedAt: info.StartedAt,
	}
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Archive.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeArchiveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArchived(*s))
}

// stopSession cancels a running session.
func (h *handlers) stopSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.app.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not running")
		return
	}
	_ = s.Close()
	w.WriteHeader(http.StatusNoContent)
}

// exportSession renders the archived final subtitles of a session as SRT or
// WebVTT. speaker=true prefixes cues with the speaker label and max_chars
// wraps cue text; max_chars=rules uses the configured subtitle rules.
func (h *handlers) exportSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := subtitle.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := subtitle.Options{Speaker: queryBool(r, "speaker", false)}
	switch v := q.Get("max_chars"); v {
	case "":
	case "rules":
		opts.MaxLineLength = h.app.Pipeline.Rules().MaxCharsPerLine
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max_chars must be a positive integer or \"rules\"")
			return
		}
		opts.MaxLineLength = n
	}

	id := chi.URLParam(r, "id")
	subs, err := h.app.Archive.Subtitles(r.Context(), id)
	if err != nil {
		writeArchiveError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+format.Extension()))
	w.WriteHeader(http.StatusOK)
	if err := subtitle.Write(w, format, subs, opts); err != nil {
		log.Debug().Err(err).Str("sessionId", id).Msg("export write failed")
	}
}

func writeArchiveError(w http.ResponseWriter, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
