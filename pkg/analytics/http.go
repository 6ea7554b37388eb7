package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
)

// HTTPSink posts each event as JSON to a collector endpoint.
type HTTPSink struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPSink creates a sink posting to url.
func NewHTTPSink(url, apiKey string) *HTTPSink {
	return &HTTPSink{url: url, apiKey: apiKey, client: &http.Client{Timeout: 5 * time.Second}}
}

// Emit implements ports.AnalyticsSink.
func (s *HTTPSink) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("collector status %d", resp.StatusCode)
	}
	return nil
}
