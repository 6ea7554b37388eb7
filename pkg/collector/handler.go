package collector

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBody = 1 << 20

// NewHandler serves the collector API:
//
//	POST /events              one event or an array of events
//	GET  /stats?tour=<id>     counts per tour and type
//	GET  /sessions/{id}       events of one session
//	GET  /healthz
func NewHandler(store *Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	h := &handler{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", h.health)
	r.Post("/events", h.events)
	r.Get("/stats", h.stats)
	r.Get("/sessions/{id}", h.session)
	return r
}

type handler struct {
	store  *Store
	logger *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	w.Write([]byte("ok"))
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}
	var events []domain.AnalyticsEvent
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &events)
	} else {
		var ev domain.AnalyticsEvent
		err = json.Unmarshal(raw, &ev)
		events = append(events, ev)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON format"})
		return
	}
	for _, ev := range events {
		if err := Validate(ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	if err := h.store.Insert(r.Context(), events...); err != nil {
		h.logger.Error("failed to store events", "err", err, "count", len(events))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store events"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context(), r.URL.Query().Get("tour"))
	if err != nil {
		h.logger.Error("failed to read stats", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read stats"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Sessions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to read session", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read session"})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
