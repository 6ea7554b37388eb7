package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	narratehttp "github.com/aretw0/narrate/pkg/adapters/http"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageRequest struct {
	ID   uint64            `json:"id"`
	Fn   string            `json:"fn"`
	Args []json.RawMessage `json:"args"`
}

// fakePage connects to the bridge and answers calls the way the page script would.
func fakePage(t *testing.T, ts *httptest.Server, answer func(pageRequest) any) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/surface"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	go func() {
		for {
			var req pageRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			res := answer(req)
			if res == nil {
				continue
			}
			if err := conn.WriteJSON(map[string]any{"reply": req.ID, "result": res}); err != nil {
				return
			}
		}
	}()
	return conn
}

func bridgeServer(t *testing.T, opts ...narratehttp.BridgeOption) (*narratehttp.Bridge, *httptest.Server) {
	t.Helper()
	b := narratehttp.NewBridge(opts...)
	ts := httptest.NewServer(narratehttp.NewHandler(newWidget(t, testConfig()), narratehttp.WithBridge(b)))
	t.Cleanup(func() {
		b.Close()
		ts.Close()
	})
	return b, ts
}

func TestBridge_NotConnected(t *testing.T) {
	b := narratehttp.NewBridge()
	_, err := b.Find(context.Background(), "#logo")
	assert.ErrorIs(t, err, narratehttp.ErrNotConnected)
	assert.False(t, b.Connected())
}

func TestBridge_Calls(t *testing.T) {
	b, ts := bridgeServer(t)
	conn := fakePage(t, ts, func(req pageRequest) any {
		switch req.Fn {
		case "find":
			var sel string
			json.Unmarshal(req.Args[0], &sel)
			if sel != "#logo" {
				return json.RawMessage("null")
			}
			return domain.ElementInfo{Selector: "#logo", Tag: "img", Bounds: domain.Rect{Width: 120, Height: 40}}
		case "viewport":
			return domain.Rect{Width: 1280, Height: 720}
		default:
			return json.RawMessage("null")
		}
	})
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))
	assert.True(t, b.Connected())

	el, err := b.Find(ctx, "#logo")
	require.NoError(t, err)
	assert.Equal(t, "img", el.Tag)

	_, err = b.Find(ctx, "#missing")
	assert.ErrorIs(t, err, domain.ErrElementNotFound)

	vp, err := b.Viewport(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(1280), vp.Width)

	require.NoError(t, b.Draw(ctx, domain.Layer{Name: "narrate-caption", Kind: domain.LayerCaption, Body: "Hi"}))
}

func TestBridge_Events(t *testing.T) {
	b, ts := bridgeServer(t)
	conn := fakePage(t, ts, func(pageRequest) any { return nil })
	defer conn.Close()

	got := make(chan domain.UIEvent, 1)
	sub := b.Subscribe(func(ev domain.UIEvent) { got <- ev })
	defer sub.Cancel()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"key","key":"ArrowLeft"}`)))
	select {
	case ev := <-got:
		assert.Equal(t, domain.UIEvent{Kind: domain.UIKey, Key: "ArrowLeft"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBridge_HandlerCanCallThePage(t *testing.T) {
	b, ts := bridgeServer(t, narratehttp.WithCallTimeout(time.Second))
	conn := fakePage(t, ts, func(req pageRequest) any {
		if req.Fn == "draw" {
			return true
		}
		return json.RawMessage("null")
	})
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))

	drawn := make(chan error, 1)
	sub := b.Subscribe(func(ev domain.UIEvent) {
		if ev.Kind != domain.UIClick {
			return
		}
		drawn <- b.Draw(ctx, domain.Layer{Name: "narrate-conversation", Kind: domain.LayerModal, Visible: true})
	})
	defer sub.Cancel()

	start := time.Now()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"click","target":"trigger"}`)))
	select {
	case err := <-drawn:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	case <-ctx.Done():
		t.Fatal("handler never finished its draw")
	}
}

func TestBridge_ReplyError(t *testing.T) {
	b, ts := bridgeServer(t)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/surface"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	go func() {
		var req pageRequest
		if conn.ReadJSON(&req) == nil {
			conn.WriteJSON(map[string]any{"reply": req.ID, "error": "TypeError: boom"})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))
	_, err = b.Viewport(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError: boom")
}

func TestBridge_DisconnectFailsPending(t *testing.T) {
	b, ts := bridgeServer(t, narratehttp.WithCallTimeout(5*time.Second))
	requested := make(chan struct{})
	conn := fakePage(t, ts, func(pageRequest) any {
		close(requested)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, b.WaitConnected(ctx))

	go func() {
		<-requested
		conn.Close()
	}()
	_, err := b.Viewport(ctx)
	assert.ErrorIs(t, err, narratehttp.ErrNotConnected)
	require.Eventually(t, func() bool { return !b.Connected() }, time.Second, 5*time.Millisecond)
}

func TestBridge_ServesScript(t *testing.T) {
	_, ts := bridgeServer(t)
	res, err := http.Get(ts.URL + "/narrate.js")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/javascript", res.Header.Get("Content-Type"))

	info := map[string]any{}
	r, err := http.Get(ts.URL + "/info")
	require.NoError(t, err)
	defer r.Body.Close()
	require.NoError(t, json.NewDecoder(r.Body).Decode(&info))
	assert.Equal(t, false, info["bridgeConnected"])
}
