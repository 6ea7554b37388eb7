package chrome

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!doctype html><html><body>
<header><img id="logo" alt="logo" style="width:120px;height:40px"></header>
<main><button class="save" data-narrate-explain="Saves your work">Save</button></main>
</body></html>`

func TestSurface_Browser(t *testing.T) {
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no Chrome installation found")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testPage))
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	b, err := Launch(ctx, Config{URL: ts.URL, Headless: true}, nil)
	require.NoError(t, err)
	defer b.Close()

	s, err := NewSurface(b.Page)
	require.NoError(t, err)
	defer s.Close()

	el, err := s.Find(ctx, "#logo")
	require.NoError(t, err)
	assert.Equal(t, "img", el.Tag)
	assert.Equal(t, "#logo", el.Selector)
	assert.Positive(t, el.Bounds.Width)

	_, err = s.Find(ctx, "#missing")
	require.ErrorIs(t, err, domain.ErrElementNotFound)

	marked, err := s.FindAll(ctx, "[data-narrate-explain]")
	require.NoError(t, err)
	require.Len(t, marked, 1)
	assert.Equal(t, "Saves your work", marked[0].Attributes["data-narrate-explain"])

	vp, err := s.Viewport(ctx)
	require.NoError(t, err)
	assert.Positive(t, vp.Width)

	png, err := s.Screenshot(ctx, &el.Bounds)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	tree, err := s.Snapshot(ctx, 3, 10, "data-narrate-explain")
	require.NoError(t, err)
	assert.Equal(t, "body", tree.Tag)

	require.NoError(t, s.Draw(ctx, domain.Layer{Name: "narrate-caption", Kind: domain.LayerCaption, Body: "Hi", Visible: true}))
	res, err := b.Page.Eval(`() => document.querySelector('[data-narrate-layer="narrate-caption"]').innerText`)
	require.NoError(t, err)
	assert.Equal(t, "Hi", res.Value.Str())
	require.NoError(t, s.Clear(ctx, "narrate-caption"))

	html, err := s.HTML(ctx, ".save")
	require.NoError(t, err)
	assert.Contains(t, html, "Saves your work")
	require.NoError(t, s.Click(ctx, ".save"))

	keys := make(chan domain.UIEvent, 1)
	s.Subscribe(func(ev domain.UIEvent) {
		if ev.Kind == domain.UIKey {
			keys <- ev
		}
	})
	require.NoError(t, b.Page.Keyboard.Type('n'))
	select {
	case ev := <-keys:
		assert.Equal(t, "n", ev.Key)
	case <-ctx.Done():
		t.Fatal("no key event")
	}
}
