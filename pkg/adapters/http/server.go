// Package http exposes a widget over HTTP: a JSON control API, a websocket
// stream of lifecycle events, and a websocket bridge that lets any web page
// act as the tour surface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/narrate"
	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/conversation"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Controller is the part of a widget the API drives.
type Controller interface {
	Start(ctx context.Context, tourID string) error
	StartStrict(ctx context.Context, tourID string) error
	Pause(ctx context.Context)
	Resume(ctx context.Context)
	Next(ctx context.Context)
	Previous(ctx context.Context)
	GoTo(ctx context.Context, index int) error
	Restart(ctx context.Context) error
	Stop(ctx context.Context) error
	OpenConversation(ctx context.Context) error
	CloseConversation(ctx context.Context) error
	Ask(ctx context.Context, question string) error
	HandleKey(ctx context.Context, key string) bool
	Run(ctx context.Context, cmd string) error
	SetSpeed(v float64) error
	State() domain.PlaybackState
	Context() domain.TourContext
	SessionID() string
	Tours(ctx context.Context) ([]domain.TourDefinition, error)
	Transcript() []domain.Message
}

var _ Controller = (*narrate.Widget)(nil)

// Server serves the control API.
type Server struct {
	Widget  Controller
	Streams *StreamManager
	logger  *slog.Logger
	bridge  *Bridge
	metrics http.Handler
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithStreams shares a StreamManager whose Hooks are installed on the widget.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithBridge mounts the page bridge at /ws/surface and its script at /narrate.js.
func WithBridge(b *Bridge) Option {
	return func(s *Server) { s.bridge = b }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewHandler creates the HTTP handler for a widget.
func NewHandler(w Controller, opts ...Option) http.Handler {
	s := &Server{Widget: w, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	if s.bridge != nil {
		r.Handle("/ws/surface", s.bridge)
		r.Get("/narrate.js", s.bridge.ServeScript)
	}

	r.Get("/tours", s.ListTours)
	r.Post("/tours/{id}/start", s.StartTour)
	r.Get("/state", s.GetState)
	r.Post("/playback/{cmd}", s.Playback)
	r.Post("/goto", s.GoTo)
	r.Post("/speed", s.SetSpeed)
	r.Post("/keys", s.Key)

	r.Route("/conversation", func(r chi.Router) {
		r.Post("/", s.OpenConversation)
		r.Delete("/", s.CloseConversation)
		r.Get("/transcript", s.GetTranscript)
		r.Post("/ask", s.Ask)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StateResponse describes the widget's playback position.
type StateResponse struct {
	State     domain.PlaybackState `json:"state"`
	SessionID string               `json:"sessionId"`
	Context   domain.TourContext   `json:"context"`
}

// TourSummary lists one available tour.
type TourSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http: encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrTourNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrUnsupported):
		status = http.StatusNotImplemented
	case errors.Is(err, speech.ErrSpeedLocked):
		status = http.StatusConflict
	case errors.Is(err, conversation.ErrNotOpen):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, conversation.ErrEmptyQuestion),
		errors.Is(err, conversation.ErrQuestionTooLong):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("http: request failed", "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

var errBadRequest = errors.New("bad request")

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func (s *Server) state() StateResponse {
	return StateResponse{
		State:     s.Widget.State(),
		SessionID: s.Widget.SessionID(),
		Context:   s.Widget.Context(),
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"app":     "narrate-http",
		"version": strings.TrimSpace(narrate.Version),
	}
	if s.bridge != nil {
		resp["bridgeConnected"] = s.bridge.Connected()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ListTours handles GET /tours.
func (s *Server) ListTours(w http.ResponseWriter, r *http.Request) {
	tours, err := s.Widget.Tours(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]TourSummary, 0, len(tours))
	for _, t := range tours {
		out = append(out, TourSummary{ID: t.ID, Name: t.Name, Steps: t.TotalSteps()})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// StartTour handles POST /tours/{id}/start.
func (s *Server) StartTour(w http.ResponseWriter, r *http.Request) {
	if err := s.Widget.StartStrict(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.state())
}

// GetState handles GET /state.
func (s *Server) GetState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.state())
}

// Playback handles POST /playback/{cmd}, where cmd is any widget command
// (next, previous, toggle, pause, resume, stop, restart, ask).
func (s *Server) Playback(w http.ResponseWriter, r *http.Request) {
	cmd := chi.URLParam(r, "cmd")
	if err := s.Widget.Run(r.Context(), cmd); err != nil {
		if strings.HasPrefix(err.Error(), "unknown command") {
			err = errors.Join(errBadRequest, err)
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.state())
}

// GoTo handles POST /goto {"index": n}.
func (s *Server) GoTo(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index *int `json:"index"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Index == nil {
		s.writeError(w, errors.Join(errBadRequest, errors.New("index is required")))
		return
	}
	if err := s.Widget.GoTo(r.Context(), *body.Index); err != nil {
		s.writeError(w, errors.Join(errBadRequest, err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.state())
}

// SetSpeed handles POST /speed {"speed": 1.25}.
func (s *Server) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.Widget.SetSpeed(body.Speed); err != nil {
		if !errors.Is(err, speech.ErrSpeedLocked) {
			err = errors.Join(errBadRequest, err)
		}
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"speed": strconv.FormatFloat(body.Speed, 'f', -1, 64)})
}

// Key handles POST /keys {"key": "ArrowRight"}.
func (s *Server) Key(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key string `json:"key"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	handled := s.Widget.HandleKey(r.Context(), body.Key)
	s.writeJSON(w, http.StatusOK, map[string]bool{"handled": handled})
}

// OpenConversation handles POST /conversation.
func (s *Server) OpenConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Widget.OpenConversation(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.state())
}

// CloseConversation handles DELETE /conversation.
func (s *Server) CloseConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Widget.CloseConversation(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.state())
}

// GetTranscript handles GET /conversation/transcript.
func (s *Server) GetTranscript(w http.ResponseWriter, _ *http.Request) {
	msgs := s.Widget.Transcript()
	if msgs == nil {
		msgs = []domain.Message{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// Ask handles POST /conversation/ask {"question": "..."}. The conversation
// is opened first when needed. The response carries the updated transcript.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Question string `json:"question"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := conversation.NormalizeQuestion(body.Question, 0); err != nil {
		s.writeError(w, err)
		return
	}
	if s.Widget.State() != domain.StateConversation {
		if err := s.Widget.OpenConversation(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if err := s.Widget.Ask(r.Context(), body.Question); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Widget.Transcript())
}
