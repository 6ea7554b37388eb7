package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/analytics"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	ts := httptest.NewServer(NewHandler(s, logging.NewNop()))
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	res.Body.Close()
	return res
}

func TestHandler_Events(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/events", "{").StatusCode)
	assert.Equal(t, http.StatusBadRequest, post(t, ts.URL+"/events", `{"type":"start"}`).StatusCode)
	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/events",
		`[{"type":"start","tourId":"a","sessionId":"s1","timestamp":"2026-03-01T12:00:00Z"},
		  {"type":"complete","tourId":"a","sessionId":"s1","timestamp":"2026-03-01T12:01:00Z"}]`).StatusCode)

	// The widget's HTTP sink posts single events.
	sink := analytics.NewHTTPSink(ts.URL+"/events", "")
	require.NoError(t, sink.Emit(context.Background(), event(domain.EventStart, "")))

	res, err := http.Get(ts.URL + "/stats?tour=a")
	require.NoError(t, err)
	defer res.Body.Close()
	var counts []Count
	require.NoError(t, json.NewDecoder(res.Body).Decode(&counts))
	assert.Equal(t, []Count{
		{TourID: "a", Type: domain.EventComplete, Count: 1},
		{TourID: "a", Type: domain.EventStart, Count: 1},
	}, counts)

	res2, err := http.Get(ts.URL + "/sessions/s1")
	require.NoError(t, err)
	defer res2.Body.Close()
	var events []domain.AnalyticsEvent
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&events))
	assert.Len(t, events, 3)
}

func TestHandler_Health(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
