package speech

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

// SynthesizePath is appended to the endpoint for synthesis requests.
const SynthesizePath = "/speech/synthesize"

// Request is the body of a synthesis request.
type Request struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voiceId"`
	Speed    float64 `json:"speed"`
	Language string  `json:"language"`
}

// Remote produces audio for a request.
type Remote interface {
	Synthesize(ctx context.Context, req Request) (domain.AudioClip, error)
}

// HTTPRemote calls a text-to-speech service over HTTP.
type HTTPRemote struct {
	endpoint string
	apiKey   string
	client   *http.Client
	tracer   trace.Tracer
}

// NewHTTPRemote creates a Remote for the service at endpoint.
func NewHTTPRemote(endpoint, apiKey string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTTPRemote{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   client,
		tracer:   otel.Tracer("github.com/aretw0/narrate/pkg/speech"),
	}
}

// Synthesize returns the raw audio payload. Non-2xx responses are errors.
func (r *HTTPRemote) Synthesize(ctx context.Context, req Request) (domain.AudioClip, error) {
	ctx, span := r.tracer.Start(ctx, "speech.synthesize", trace.WithAttributes(
		attribute.Int("narrate.text_length", len(req.Text)),
		attribute.String("narrate.voice", req.VoiceID),
	))
	defer span.End()

	clip, err := r.synthesize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return clip, err
}

func (r *HTTPRemote) synthesize(ctx context.Context, req Request) (domain.AudioClip, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.AudioClip{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+SynthesizePath, bytes.NewReader(body))
	if err != nil {
		return domain.AudioClip{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return domain.AudioClip{}, fmt.Errorf("post synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.AudioClip{}, fmt.Errorf("synthesize status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.AudioClip{}, fmt.Errorf("read audio: %w", err)
	}
	if len(data) == 0 {
		return domain.AudioClip{}, fmt.Errorf("empty audio payload")
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" || strings.HasPrefix(mime, "application/json") {
		mime = "audio/mpeg"
	}
	return domain.AudioClip{Data: data, MIME: mime}, nil
}
