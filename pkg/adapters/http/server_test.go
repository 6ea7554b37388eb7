package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/narrate"
	narratehttp "github.com/aretw0/narrate/pkg/adapters/http"
	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/conversation"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answerFunc func(ctx context.Context, q conversation.Question) (conversation.Answer, error)

func (f answerFunc) Ask(ctx context.Context, q conversation.Question) (conversation.Answer, error) {
	return f(ctx, q)
}

func testTour() domain.TourDefinition {
	return domain.TourDefinition{
		ID:   "onboarding",
		Name: "Onboarding",
		Pages: []domain.Page{{
			ID: "home",
			Steps: []domain.Step{
				{ID: "welcome", Selector: "#logo", Narration: "Welcome aboard"},
				{ID: "search", Selector: "#search", Narration: "Search here"},
			},
		}},
	}
}

func newWidget(t *testing.T, cfg config.Config, opts ...narrate.Option) *narrate.Widget {
	t.Helper()
	surface := memory.NewSurface()
	surface.Add("#logo", domain.ElementInfo{Bounds: domain.Rect{X: 10, Y: 10, Width: 100, Height: 40}})
	surface.Add("#search", domain.ElementInfo{Bounds: domain.Rect{X: 200, Y: 10, Width: 300, Height: 30}})
	player := memory.NewPlayer(20 * time.Millisecond)
	loader, err := memory.NewLoader(testTour())
	require.NoError(t, err)

	base := []narrate.Option{
		narrate.WithTourLoader(loader),
		narrate.WithAudioPlayer(player),
		narrate.WithNativeSpeaker(player),
		narrate.WithAnswerer(answerFunc(func(context.Context, conversation.Question) (conversation.Answer, error) {
			return conversation.Answer{Answer: "That is the logo."}, nil
		})),
	}
	w, err := narrate.New(cfg, surface, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, w.Destroy(ctx))
	})
	return w
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Timing.StepDelay = 5 * time.Millisecond
	cfg.Timing.SettleDelay = time.Millisecond
	cfg.Hover.Enabled = false
	cfg.ExitConfirmation.Enabled = false
	return cfg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_HealthAndInfo(t *testing.T) {
	h := narratehttp.NewHandler(newWidget(t, testConfig()))

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	info := decode[map[string]any](t, do(t, h, http.MethodGet, "/info", ""))
	assert.Equal(t, "narrate-http", info["app"])
	assert.Equal(t, strings.TrimSpace(narrate.Version), info["version"])

	rec = do(t, h, http.MethodOptions, "/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Tours(t *testing.T) {
	h := narratehttp.NewHandler(newWidget(t, testConfig()))

	tours := decode[[]narratehttp.TourSummary](t, do(t, h, http.MethodGet, "/tours", ""))
	assert.Equal(t, []narratehttp.TourSummary{{ID: "onboarding", Name: "Onboarding", Steps: 2}}, tours)
}

func TestServer_StartTour(t *testing.T) {
	w := newWidget(t, testConfig())
	h := narratehttp.NewHandler(w)

	rec := do(t, h, http.MethodPost, "/tours/missing/start", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "tour not found")

	rec = do(t, h, http.MethodPost, "/tours/onboarding/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[narratehttp.StateResponse](t, rec)
	assert.Equal(t, "onboarding", st.Context.TourID)
	assert.Equal(t, w.SessionID(), st.SessionID)

	require.Eventually(t, func() bool {
		return decode[narratehttp.StateResponse](t, do(t, h, http.MethodGet, "/state", "")).State == domain.StateIdle
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Playback(t *testing.T) {
	cfg := testConfig()
	cfg.Timing.StepDelay = time.Hour
	h := narratehttp.NewHandler(newWidget(t, cfg))

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/tours/onboarding/start", "").Code)

	rec := do(t, h, http.MethodPost, "/playback/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatePaused, decode[narratehttp.StateResponse](t, rec).State)

	rec = do(t, h, http.MethodPost, "/goto", `{"index":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[narratehttp.StateResponse](t, rec).Context.StepIndex)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/goto", `{"index":9}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/goto", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/playback/dance", "").Code)

	rec = do(t, h, http.MethodPost, "/playback/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StateIdle, decode[narratehttp.StateResponse](t, rec).State)
}

func TestServer_Speed(t *testing.T) {
	h := narratehttp.NewHandler(newWidget(t, testConfig()))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/speed", `{"speed":1.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/speed", `{"speed":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/speed", `nope`).Code)

	cfg := testConfig()
	cfg.Speech.AllowChange = false
	locked := narratehttp.NewHandler(newWidget(t, cfg))
	assert.Equal(t, http.StatusConflict, do(t, locked, http.MethodPost, "/speed", `{"speed":1.5}`).Code)
}

func TestServer_Keys(t *testing.T) {
	h := narratehttp.NewHandler(newWidget(t, testConfig()))
	rec := do(t, h, http.MethodPost, "/keys", `{"key":"ArrowRight"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"handled": false}, decode[map[string]bool](t, rec), "idle widget ignores keys")
}

func TestServer_Conversation(t *testing.T) {
	h := narratehttp.NewHandler(newWidget(t, testConfig()))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/conversation/ask", `{"question":" "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/conversation/ask", `{"question":"\u0007\u200b"}`).Code)
	long := do(t, h, http.MethodPost, "/conversation/ask", `{"question":"`+strings.Repeat("a", 600)+`"}`)
	assert.Equal(t, http.StatusBadRequest, long.Code)
	assert.Contains(t, long.Body.String(), "too long")

	rec := do(t, h, http.MethodPost, "/conversation/ask", `{"question":"What is this?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	msgs := decode[[]domain.Message](t, rec)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "That is the logo.", msgs[len(msgs)-1].Text)

	transcript := decode[[]domain.Message](t, do(t, h, http.MethodGet, "/conversation/transcript", ""))
	assert.Equal(t, msgs, transcript)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodDelete, "/conversation", "").Code)
}

func TestServer_ConversationDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Conversation.Enabled = false
	h := narratehttp.NewHandler(newWidget(t, cfg))

	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodPost, "/conversation", "").Code)
	assert.JSONEq(t, `[]`, do(t, h, http.MethodGet, "/conversation/transcript", "").Body.String())
}

func TestServer_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("narrate_events_total 1\n"))
	})
	h := narratehttp.NewHandler(newWidget(t, testConfig()), narratehttp.WithMetricsHandler(metrics))
	assert.Contains(t, do(t, h, http.MethodGet, "/metrics", "").Body.String(), "narrate_events_total")
}

func TestServer_Events(t *testing.T) {
	streams := narratehttp.NewStreamManager(nil)
	w := newWidget(t, testConfig(), narrate.WithLifecycleHooks(streams.Hooks()))
	ts := httptest.NewServer(narratehttp.NewHandler(w, narratehttp.WithStreams(streams)))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events?watch=step"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return streams.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Start(context.Background(), "onboarding"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev narratehttp.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, narratehttp.EventStepEnter, ev.Type, "state events are filtered out")
	require.NotNil(t, ev.Step)
	assert.Equal(t, "welcome", ev.Step.StepID)

	conn.Close()
	require.Eventually(t, func() bool { return streams.Len() == 0 }, time.Second, 5*time.Millisecond)
}
