// Package mcp exposes a widget to AI agents as a Model Context Protocol server,
// so an assistant can list tours, drive playback and ask about the page.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/narrate"
	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Widget is the part of a widget the MCP tools drive.
type Widget interface {
	StartStrict(ctx context.Context, tourID string) error
	GoTo(ctx context.Context, index int) error
	OpenConversation(ctx context.Context) error
	Ask(ctx context.Context, question string) error
	Run(ctx context.Context, cmd string) error
	SetSpeed(v float64) error
	State() domain.PlaybackState
	Context() domain.TourContext
	SessionID() string
	Tours(ctx context.Context) ([]domain.TourDefinition, error)
	Transcript() []domain.Message
}

var _ Widget = (*narrate.Widget)(nil)

// StateResponse is the structured result of every playback tool.
type StateResponse struct {
	State     domain.PlaybackState `json:"state" jsonschema_description:"Playback state: idle, playing, paused or conversation"`
	SessionID string               `json:"sessionId" jsonschema_description:"Analytics session id"`
	TourID    string               `json:"tourId,omitempty" jsonschema_description:"Tour being played"`
	StepIndex int                  `json:"stepIndex" jsonschema_description:"Zero-based index of the current step"`
	Total     int                  `json:"totalSteps" jsonschema_description:"Number of steps in the tour"`
	StepTitle string               `json:"stepTitle,omitempty" jsonschema_description:"Title of the current step"`
}

// TourSummary describes one available tour.
type TourSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Steps int    `json:"steps"`
}

// ToursResponse lists the available tours.
type ToursResponse struct {
	Tours []TourSummary `json:"tours"`
}

// AnswerResponse carries the assistant's reply to a question.
type AnswerResponse struct {
	Answer     string           `json:"answer"`
	Transcript []domain.Message `json:"transcript"`
}

// StartArgs are the arguments of start_tour.
type StartArgs struct {
	TourID string `json:"tour_id"`
}

// ControlArgs are the arguments of control.
type ControlArgs struct {
	Command string `json:"command"`
}

// GoToArgs are the arguments of go_to_step.
type GoToArgs struct {
	Index int `json:"index"`
}

// AskArgs are the arguments of ask.
type AskArgs struct {
	Question string `json:"question"`
}

// SpeedArgs are the arguments of set_speed.
type SpeedArgs struct {
	Speed float64 `json:"speed"`
}

// Server wraps a widget and exposes it as an MCP Server.
type Server struct {
	widget    Widget
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP Server instance.
func NewServer(w Widget, opts ...Option) *Server {
	s := &Server{
		widget:    w,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("narrate-mcp", strings.TrimSpace(narrate.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves on addr using SSE until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_tours",
		mcp.WithDescription("List the guided tours available on this page."),
		mcp.WithOutputSchema[ToursResponse](),
	), mcp.NewStructuredToolHandler(s.handleListTours))

	s.mcpServer.AddTool(mcp.NewTool("start_tour",
		mcp.WithDescription("Start a guided tour from its first step. Omit tour_id to start the first tour."),
		mcp.WithString("tour_id", mcp.Description("Id of the tour to start")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleStartTour))

	s.mcpServer.AddTool(mcp.NewTool("control",
		mcp.WithDescription("Control tour playback."),
		mcp.WithString("command", mcp.Required(),
			mcp.Description("Playback command"),
			mcp.Enum("next", "previous", "toggle", "pause", "resume", "stop", "restart"),
		),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleControl))

	s.mcpServer.AddTool(mcp.NewTool("go_to_step",
		mcp.WithDescription("Jump to a step of the running tour."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based step index")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGoTo))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the current playback state and step."),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Ask the tour assistant a question about the page. The tour is paused while the conversation is open."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question")),
		mcp.WithOutputSchema[AnswerResponse](),
	), mcp.NewStructuredToolHandler(s.handleAsk))

	s.mcpServer.AddTool(mcp.NewTool("set_speed",
		mcp.WithDescription("Change the narration speed."),
		mcp.WithNumber("speed", mcp.Required(), mcp.Description("Playback rate, 1.0 is normal")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetSpeed))
}

func (s *Server) state() StateResponse {
	tc := s.widget.Context()
	resp := StateResponse{
		State:     s.widget.State(),
		SessionID: s.widget.SessionID(),
		TourID:    tc.TourID,
		StepIndex: tc.StepIndex,
		Total:     tc.TotalSteps,
	}
	if tc.CurrentStep != nil {
		resp.StepTitle = tc.CurrentStep.Title
	}
	return resp
}

func (s *Server) handleListTours(ctx context.Context, _ mcp.CallToolRequest, _ struct{}) (ToursResponse, error) {
	tours, err := s.widget.Tours(ctx)
	if err != nil {
		return ToursResponse{}, fmt.Errorf("list tours: %w", err)
	}
	out := ToursResponse{Tours: make([]TourSummary, 0, len(tours))}
	for _, t := range tours {
		out.Tours = append(out.Tours, TourSummary{ID: t.ID, Name: t.Name, Steps: t.TotalSteps()})
	}
	return out, nil
}

func (s *Server) handleStartTour(ctx context.Context, _ mcp.CallToolRequest, args StartArgs) (StateResponse, error) {
	if err := s.widget.StartStrict(ctx, args.TourID); err != nil {
		return StateResponse{}, fmt.Errorf("start tour: %w", err)
	}
	return s.state(), nil
}

func (s *Server) handleControl(ctx context.Context, _ mcp.CallToolRequest, args ControlArgs) (StateResponse, error) {
	if args.Command == "ask" {
		return StateResponse{}, errors.New("use the ask tool to open a conversation")
	}
	if err := s.widget.Run(ctx, args.Command); err != nil {
		return StateResponse{}, err
	}
	return s.state(), nil
}

func (s *Server) handleGoTo(ctx context.Context, _ mcp.CallToolRequest, args GoToArgs) (StateResponse, error) {
	if err := s.widget.GoTo(ctx, args.Index); err != nil {
		return StateResponse{}, err
	}
	return s.state(), nil
}

func (s *Server) handleGetState(context.Context, mcp.CallToolRequest, struct{}) (StateResponse, error) {
	return s.state(), nil
}

func (s *Server) handleAsk(ctx context.Context, _ mcp.CallToolRequest, args AskArgs) (AnswerResponse, error) {
	if strings.TrimSpace(args.Question) == "" {
		return AnswerResponse{}, errors.New("question is required")
	}
	if s.widget.State() != domain.StateConversation {
		if err := s.widget.OpenConversation(ctx); err != nil {
			return AnswerResponse{}, fmt.Errorf("open conversation: %w", err)
		}
	}
	if err := s.widget.Ask(ctx, args.Question); err != nil {
		return AnswerResponse{}, err
	}
	msgs := s.widget.Transcript()
	resp := AnswerResponse{Transcript: msgs}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleAgent {
			resp.Answer = msgs[i].Text
			break
		}
	}
	return resp, nil
}

func (s *Server) handleSetSpeed(_ context.Context, _ mcp.CallToolRequest, args SpeedArgs) (StateResponse, error) {
	if err := s.widget.SetSpeed(args.Speed); err != nil {
		return StateResponse{}, err
	}
	return s.state(), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("narrate://tours", "Available tours",
		mcp.WithResourceDescription("Every tour definition, with its steps"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tours, err := s.widget.Tours(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tours: %w", err)
		}
		return jsonResource("narrate://tours", tours)
	})

	s.mcpServer.AddResource(mcp.NewResource("narrate://state", "Playback state",
		mcp.WithMIMEType("application/json"),
	), func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource("narrate://state", s.state())
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
