package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AskPath is appended to the endpoint for question-answering requests.
const AskPath = "/conversation/ask"

// Question is the body of a question-answering request.
// A nil Screenshot or Context is sent as JSON null.
type Question struct {
	Screenshot    *string             `json:"screenshot"`
	Question      string              `json:"question"`
	Context       *domain.TourContext `json:"context"`
	SystemPrompt  string              `json:"systemPrompt"`
	KnowledgeBase string              `json:"knowledgeBase,omitempty"`
	Snapshot      *domain.DOMNode     `json:"structuralSnapshot,omitempty"`
}

// Answer is the part of the response the overlay uses.
type Answer struct {
	Answer string `json:"answer"`
}

// Answerer answers a question about the page.
type Answerer interface {
	Ask(ctx context.Context, q Question) (Answer, error)
}

// HTTPAnswerer calls a language-model endpoint over HTTP.
type HTTPAnswerer struct {
	endpoint string
	apiKey   string
	client   *http.Client
	tracer   trace.Tracer
}

// NewHTTPAnswerer creates an Answerer for the service at endpoint.
func NewHTTPAnswerer(endpoint, apiKey string, client *http.Client) *HTTPAnswerer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPAnswerer{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   client,
		tracer:   otel.Tracer("github.com/aretw0/narrate/pkg/conversation"),
	}
}

// Ask posts the question. Non-2xx responses and empty answers are errors.
func (a *HTTPAnswerer) Ask(ctx context.Context, q Question) (Answer, error) {
	ctx, span := a.tracer.Start(ctx, "conversation.ask", trace.WithAttributes(
		attribute.Int("narrate.question_length", len(q.Question)),
		attribute.Bool("narrate.with_screenshot", q.Screenshot != nil),
	))
	defer span.End()

	ans, err := a.ask(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return ans, err
}

func (a *HTTPAnswerer) ask(ctx context.Context, q Question) (Answer, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return Answer{}, fmt.Errorf("encode question: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+AskPath, bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Answer{}, fmt.Errorf("post question: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("ask status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ans Answer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return Answer{}, fmt.Errorf("decode answer: %w", err)
	}
	if strings.TrimSpace(ans.Answer) == "" {
		return Answer{}, fmt.Errorf("empty answer")
	}
	return ans, nil
}

// SystemPrompt builds the instructions sent with every question.
func SystemPrompt(agentName, personality string, tc domain.TourContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a guide helping a user through a product tour.", agentName)
	if personality != "" {
		fmt.Fprintf(&b, " Personality: %s.", personality)
	}
	b.WriteString(" Answer briefly, in plain language, about what is visible on the page.")
	if tc.TourID != "" {
		fmt.Fprintf(&b, " The user is on step %d of %d of the tour %q", tc.StepIndex+1, tc.TotalSteps, nonEmpty(tc.TourName, tc.TourID))
		if tc.PageTitle != "" {
			fmt.Fprintf(&b, ", page %q", tc.PageTitle)
		}
		b.WriteString(".")
		if tc.CurrentStep != nil && tc.CurrentStep.Title != "" {
			fmt.Fprintf(&b, " The current step is %q.", tc.CurrentStep.Title)
		}
	}
	return b.String()
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
