// Package vision locates tour elements through a remote vision model.
//
// The client never propagates a failure: a transport, status or decoding error
// resolves to an ElementLocation that tells the caller whether to fall back to
// the step's selector hint.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LocatePath is appended to the endpoint for location requests.
const LocatePath = "/vision/locate"

// Client talks to the vision-location service. At most one request is in flight.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer sets the tracer used for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// New creates a client for the service at endpoint.
func New(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
		logger:   logging.NewNop(),
		tracer:   otel.Tracer("github.com/aretw0/narrate/pkg/vision"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locate asks the model where the described element is.
// A newer call cancels this one; the cancelled call resolves like any other failure.
func (c *Client) Locate(ctx context.Context, req domain.LocateRequest) domain.ElementLocation {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.seq == seq {
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
	}()

	ctx, span := c.tracer.Start(ctx, "vision.locate", trace.WithAttributes(
		attribute.String("narrate.selector_hint", req.SelectorHint),
		attribute.Int("narrate.screenshot_bytes", len(req.Screenshot)),
	))
	defer span.End()

	loc, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("vision locate failed", "err", err, "hint", req.SelectorHint)
		return Fallback(req.SelectorHint, err)
	}

	span.SetAttributes(attribute.Bool("narrate.found", loc.Found), attribute.Float64("narrate.confidence", loc.Confidence))
	return loc
}

func (c *Client) do(ctx context.Context, req domain.LocateRequest) (domain.ElementLocation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.ElementLocation{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+LocatePath, bytes.NewReader(body))
	if err != nil {
		return domain.ElementLocation{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.ElementLocation{}, fmt.Errorf("post locate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ElementLocation{}, fmt.Errorf("locate status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var loc domain.ElementLocation
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return domain.ElementLocation{}, fmt.Errorf("decode locate response: %w", err)
	}
	loc.Confidence = clamp(loc.Confidence)
	return loc, nil
}

// Fallback synthesizes the location returned when the service cannot answer.
func Fallback(hint string, err error) domain.ElementLocation {
	loc := domain.ElementLocation{
		Found:          false,
		FallbackToHint: hint != "",
	}
	if hint != "" {
		loc.Confidence = 0.5
	}
	if err != nil {
		loc.Error = err.Error()
	}
	return loc
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
