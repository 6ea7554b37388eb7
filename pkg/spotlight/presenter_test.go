package spotlight_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/spotlight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSurface() *memory.Surface {
	s := memory.NewSurface()
	s.Add("#save", domain.ElementInfo{Bounds: domain.Rect{X: 100, Y: 100, Width: 80, Height: 30}})
	s.Add("#footer", domain.ElementInfo{Bounds: domain.Rect{X: 100, Y: 3000, Width: 200, Height: 50}})
	return s
}

func TestShowHide(t *testing.T) {
	ctx := context.Background()
	s := newSurface()
	p := spotlight.New(s)

	require.NoError(t, p.Show(ctx))
	overlay, ok := s.Layer(spotlight.OverlayLayer)
	require.True(t, ok)
	assert.Equal(t, spotlight.DefaultTransition, overlay.Transition)
	assert.True(t, p.Shown())

	require.NoError(t, p.Highlight(ctx, "#save"))
	require.NoError(t, p.Hide(ctx))
	_, ok = s.Layer(spotlight.OverlayLayer)
	assert.False(t, ok)
	_, ok = s.Layer(spotlight.HighlightLayer)
	assert.False(t, ok)
	assert.Empty(t, p.Current())
}

func TestHighlight_Padding(t *testing.T) {
	s := newSurface()
	p := spotlight.New(s)

	require.NoError(t, p.Highlight(context.Background(), "#save"))

	hl, ok := s.Layer(spotlight.HighlightLayer)
	require.True(t, ok)
	require.Len(t, hl.Rects, 1)
	assert.Equal(t, domain.Rect{X: 92, Y: 92, Width: 96, Height: 46}, hl.Rects[0])
	assert.Empty(t, s.Scrolls())
}

func TestHighlight_ScrollsOffscreenElement(t *testing.T) {
	s := newSurface()
	p := spotlight.New(s, spotlight.WithSettleDelay(time.Millisecond))

	require.NoError(t, p.Highlight(context.Background(), "#footer"))

	assert.Equal(t, []string{"#footer"}, s.Scrolls())
	hl, _ := s.Layer(spotlight.HighlightLayer)
	assert.Less(t, hl.Rects[0].Y, 800.0, "measured after the scroll")
}

// cancelOnFind cancels the caller's step right after the element is measured.
type cancelOnFind struct {
	*memory.Surface
	cancel context.CancelFunc
}

func (c cancelOnFind) Find(ctx context.Context, selector string) (domain.ElementInfo, error) {
	el, err := c.Surface.Find(ctx, selector)
	c.cancel()
	return el, err
}

func TestHighlight_CancelledAfterFindDrawsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSurface()
	p := spotlight.New(cancelOnFind{Surface: s, cancel: cancel})

	err := p.Highlight(ctx, "#save")
	require.ErrorIs(t, err, context.Canceled)

	_, ok := s.Layer(spotlight.HighlightLayer)
	assert.False(t, ok)
	assert.Empty(t, p.Current())
}

func TestHighlight_Missing(t *testing.T) {
	p := spotlight.New(newSurface())
	err := p.Highlight(context.Background(), "#nope")
	assert.ErrorIs(t, err, domain.ErrElementNotFound)
	assert.Empty(t, p.Current())
}

func TestUpdatePosition(t *testing.T) {
	ctx := context.Background()
	s := newSurface()
	p := spotlight.New(s)

	// No-op before anything is highlighted
	require.NoError(t, p.UpdatePosition(ctx))
	assert.Empty(t, s.Draws(domain.LayerHighlight))

	require.NoError(t, p.Highlight(ctx, "#save"))
	s.Move("#save", domain.Rect{X: 300, Y: 200, Width: 80, Height: 30})

	require.NoError(t, p.UpdatePosition(ctx))
	require.NoError(t, p.UpdatePosition(ctx))

	draws := s.Draws(domain.LayerHighlight)
	require.Len(t, draws, 3)
	assert.Equal(t, draws[1], draws[2], "idempotent")
	assert.Equal(t, 292.0, draws[2].Rects[0].X)
}

func TestTrack(t *testing.T) {
	ctx := context.Background()
	s := newSurface()
	p := spotlight.New(s)
	require.NoError(t, p.Highlight(ctx, "#save"))

	sub := p.Track()
	s.Move("#save", domain.Rect{X: 10, Y: 10, Width: 80, Height: 30})
	s.Emit(domain.UIEvent{Kind: domain.UIResize})

	hl, _ := s.Layer(spotlight.HighlightLayer)
	assert.Equal(t, 2.0, hl.Rects[0].X)

	sub.Cancel()
	assert.Equal(t, 0, s.Subscribers())
}

func TestCaption(t *testing.T) {
	ctx := context.Background()
	s := newSurface()

	require.NoError(t, spotlight.New(s).Caption(ctx, domain.Step{Narration: "hi"}))
	_, ok := s.Layer(spotlight.CaptionLayer)
	assert.False(t, ok, "captions disabled by default")

	require.NoError(t, spotlight.New(s, spotlight.WithCaptions("bottom")).Caption(ctx, domain.Step{Title: "Save", Narration: "Click save"}))
	c, ok := s.Layer(spotlight.CaptionLayer)
	require.True(t, ok)
	assert.Equal(t, "bottom", c.Position)
	assert.Equal(t, "Click save", c.Body)
}
