package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/history"
	"github.com/starford/ansuz/internal/playbook"
	"github.com/starford/ansuz/internal/selector"
)

// Handler holds API route handlers.
type Handler struct {
	store *playbook.Store
	hist  *history.DB
	sel   *selector.Selector
	eng   *engine.Engine // nil in monitor mode
}

// NewHandler creates a new Handler. hist and eng may be nil; the
// corresponding routes then answer 503.
func NewHandler(store *playbook.Store, hist *history.DB, sel *selector.Selector, eng *engine.Engine) *Handler {
	return &Handler{store: store, hist: hist, sel: sel, eng: eng}
}

// ListFiles handles GET /playbook.
func (h *Handler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	names := h.store.ListFiles()
	items := make([]FileListItem, 0, len(names))
	for _, name := range names {
		f, err := h.store.GetFile(name)
		if err != nil {
			continue
		}
		items = append(items, FileListItem{Name: name, Sections: len(f.Sections)})
	}
	writeJSON(w, http.StatusOK, FileListResponse{Files: items})
}

// GetFile handles GET /playbook/{file}.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	f, err := h.store.GetFile(name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("get file failed", slog.String("file", name), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, FileDetail{Name: f.Name, Sections: f.Sections})
}

// GetSection handles GET /playbook/{file}/sections/{id}.
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	id := chi.URLParam(r, "id")
	sec, err := h.store.ReadSection(name, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
		} else {
			slog.Error("get section failed", slog.String("file", name), slog.String("id", id), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Stats())
}

// Deltas handles GET /deltas with optional limit, outcome, and target
// query parameters.
func (h *Handler) Deltas(w http.ResponseWriter, r *http.Request) {
	if h.hist == nil {
		writeError(w, http.StatusServiceUnavailable, "history index unavailable")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	rows, err := h.hist.Recent(limit, q.Get("outcome"), q.Get("target"))
	if err != nil {
		slog.Error("deltas query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deltas": rows})
}

// Context handles GET /context: a non-mutating selection preview.
// Budgets default to the configured ones when absent.
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fragments, _ := strconv.Atoi(q.Get("fragments"))
	chars, _ := strconv.Atoi(q.Get("chars"))
	var tags []string
	if raw := q.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}
	sections := h.sel.Preview(fragments, chars, tags)
	total := 0
	for _, sec := range sections {
		total += len(sec.Content)
	}
	writeJSON(w, http.StatusOK, ContextResponse{Sections: sections, Characters: total})
}

// RunTurn handles POST /turn: the simulator's entry into the curation
// pipeline. The response carries the context slice for the next cycle.
func (h *Handler) RunTurn(w http.ResponseWriter, r *http.Request) {
	if h.eng == nil {
		writeError(w, http.StatusServiceUnavailable, "engine unavailable (monitor mode)")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.eng.RunTurn(r.Context(), req.Log, req.Reflection)
	if err != nil {
		slog.Error("turn failed", slog.Int("turn", req.Log.Turn), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
