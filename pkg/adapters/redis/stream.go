package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// StreamSink appends analytics events to a Redis stream, one entry per event.
type StreamSink struct {
	client *backend.Client
	stream string
	maxLen int64
}

var _ ports.AnalyticsSink = (*StreamSink)(nil)

// NewStreamSink creates a sink writing to stream. A positive maxLen caps the
// stream approximately.
func NewStreamSink(client *backend.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Emit implements ports.AnalyticsSink.
func (s *StreamSink) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	args := &backend.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"type":      string(ev.Type),
			"tourId":    ev.TourID,
			"stepId":    ev.StepID,
			"sessionId": ev.SessionID,
			"metadata":  string(meta),
			"timestamp": ev.Timestamp.UnixMilli(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append event to %s: %w", s.stream, err)
	}
	return nil
}
