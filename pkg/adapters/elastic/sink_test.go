package elastic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSink_Emit(t *testing.T) {
	docs := make(chan map[string]any, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasPrefix(r.URL.Path, "/narrate-events/_doc") {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"no such index"}`))
			return
		}
		var doc map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		docs <- doc
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	}))
	defer ts.Close()

	sink, err := NewSink([]string{ts.URL}, "narrate-events")
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err = sink.Emit(context.Background(), domain.AnalyticsEvent{
		Type:      domain.EventStepView,
		TourID:    "onboarding",
		StepID:    "welcome",
		SessionID: "s1",
		Timestamp: at,
	})
	require.NoError(t, err)

	doc := <-docs
	assert.Equal(t, "onboarding", doc["tourId"])
	assert.Equal(t, "s1", doc["sessionId"])
	assert.Equal(t, "2026-03-01T12:00:00.000Z", doc["@timestamp"])

	missing, err := NewSink([]string{ts.URL}, "other")
	require.NoError(t, err)
	err = missing.Emit(context.Background(), domain.AnalyticsEvent{SessionID: "s1", Timestamp: at})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
