package http

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"ktv-subtitle-service/internal/dictionary"
)

// Route slugs of the editable tables.
var (
	patternTables = map[string]dictionary.Table{
		"profanity":     dictionary.TableProfanity,
		"hallucination": dictionary.TableHallucination,
	}
	entryTables = map[string]dictionary.Table{
		"proper-nouns":    dictionary.TableProperNouns,
		"government-dict": dictionary.TableGovernment,
		"abbreviations":   dictionary.TableAbbreviations,
	}
)

type tableResponse struct {
	DictionaryType string `json:"dictionary_type"`
	Items          any    `json:"items"`
	Total          int    `json:"total"`
}

type mutationResponse struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
}

type patternRequest struct {
	Pattern string `json:"pattern"`
}

type statsResponse struct {
	dictionary.TableCounts
	Static   dictionary.TableCounts `json:"static"`
	LoadedAt time.Time              `json:"loaded_at"`
}

func (h *handlers) adminRoutes(r chi.Router) {
	r.Get("/stats", h.adminStats)
	r.Post("/reload", h.adminReload)

	for slug, table := range patternTables {
		r.Get("/"+slug, h.listTable(table))
		r.Post("/"+slug, h.addPattern(table))
		// Hallucination patterns are regular expressions and may contain '/'.
		r.Delete("/"+slug+"/*", h.deletePattern(table))
	}
	for slug, table := range entryTables {
		r.Get("/"+slug, h.listTable(table))
		r.Post("/"+slug, h.addEntry(table))
		r.Delete("/"+slug+"/{key}", h.deleteEntry(table))
	}
	r.Get("/sensitive-patterns", h.listTable(dictionary.TableSensitive))

	r.Get("/subtitle-rules", h.getRules)
	r.Post("/subtitle-rules", h.saveRules)
	r.Post("/subtitle-rules/reset", h.resetRules)
}

func (h *handlers) adminStats(w http.ResponseWriter, _ *http.Request) {
	doc, err := h.app.Editor.Document()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	snap := h.app.Dictionary.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{
		TableCounts: doc.Counts(),
		Static:      snap.Static,
		LoadedAt:    snap.LoadedAt,
	})
}

func (h *handlers) adminReload(w http.ResponseWriter, _ *http.Request) {
	snap := h.app.Dictionary.Reload()
	writeJSON(w, http.StatusOK, statsResponse{
		TableCounts: snap.Dynamic,
		Static:      snap.Static,
		LoadedAt:    snap.LoadedAt,
	})
}

func (h *handlers) listTable(t dictionary.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		doc, err := h.app.Editor.Document()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		var items any
		var total int
		switch {
		case t == dictionary.TableSensitive:
			items, total = append([]dictionary.SensitiveRule{}, doc.Sensitive...), len(doc.Sensitive)
		default:
			if list, ok := doc.Patterns(t); ok {
				items, total = append([]string{}, *list...), len(*list)
			} else if list, ok := doc.Entries(t); ok {
				items, total = append([]dictionary.Entry{}, *list...), len(*list)
			}
		}
		writeJSON(w, http.StatusOK, tableResponse{DictionaryType: string(t), Items: items, Total: total})
	}
}

func (h *handlers) addPattern(t dictionary.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patternRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		total, err := h.app.Editor.AddPattern(t, req.Pattern)
		if err != nil {
			writeDictionaryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, mutationResponse{Message: "added", Total: total})
	}
}

func (h *handlers) deletePattern(t dictionary.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := h.app.Editor.DeletePattern(t, pathParam(r, "*"))
		if err != nil {
			writeDictionaryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Message: "deleted", Total: total})
	}
}

func (h *handlers) addEntry(t dictionary.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry dictionary.Entry
		if err := decodeJSON(w, r, &entry); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		total, err := h.app.Editor.AddEntry(t, entry)
		if err != nil {
			writeDictionaryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, mutationResponse{Message: "added", Total: total})
	}
}

func (h *handlers) deleteEntry(t dictionary.Table) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := h.app.Editor.DeleteEntry(t, pathParam(r, "key"))
		if err != nil {
			writeDictionaryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mutationResponse{Message: "deleted", Total: total})
	}
}

func (h *handlers) getRules(w http.ResponseWriter, _ *http.Request) {
	doc, err := h.app.Editor.Document()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc.SubtitleRules)
}

func (h *handlers) saveRules(w http.ResponseWriter, r *http.Request) {
	rules := dictionary.DefaultSubtitleRules()
	if err := decodeJSON(w, r, &rules); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if rules.MaxLines <= 0 || rules.MaxCharsPerLine <= 0 {
		writeError(w, http.StatusBadRequest, "max_lines and max_chars_per_line must be positive")
		return
	}
	if rules.FadeTimeoutMs < 0 || rules.DisplayDelayMs < 0 || rules.MinDisplayMs < 0 {
		writeError(w, http.StatusBadRequest, "durations must not be negative")
		return
	}
	if err := h.app.Editor.SaveRules(rules); err != nil {
		writeDictionaryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *handlers) resetRules(w http.ResponseWriter, _ *http.Request) {
	rules, err := h.app.Editor.ResetRules()
	if err != nil {
		writeDictionaryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// pathParam returns a URL parameter, unescaping it when the router left it
// percent-encoded.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func writeDictionaryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dictionary.ErrEntryExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dictionary.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dictionary.ErrInvalidPattern),
		errors.Is(err, dictionary.ErrEmptyKey),
		errors.Is(err, dictionary.ErrUnknownTable):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
