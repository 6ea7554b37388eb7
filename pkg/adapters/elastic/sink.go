// Package elastic indexes analytics events into Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/elastic/go-elasticsearch/v8"
)

// Sink writes one document per event.
type Sink struct {
	client *elasticsearch.Client
	index  string
}

var _ ports.AnalyticsSink = (*Sink)(nil)

// NewSink creates a sink indexing into index on the given nodes.
func NewSink(addresses []string, index string) (*Sink, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &Sink{client: es, index: index}, nil
}

// document is the indexed form of an event.
type document struct {
	domain.AnalyticsEvent
	Date string `json:"@timestamp"`
}

// Emit implements ports.AnalyticsSink.
func (s *Sink) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	body, err := json.Marshal(document{AnalyticsEvent: ev, Date: ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	res, err := s.client.Index(s.index, bytes.NewReader(body), s.client.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch index failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("elasticsearch index error: %s: %s", res.Status(), msg)
	}
	return nil
}
