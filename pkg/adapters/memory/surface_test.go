package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurface_FindAll(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSurface()
	s.Add("#save", domain.ElementInfo{Bounds: domain.Rect{X: 10, Y: 10, Width: 80, Height: 30}})
	s.Add("#help", domain.ElementInfo{Attributes: map[string]string{"data-explain": "", "data-explain-title": "Help"}})
	s.Add("#docs", domain.ElementInfo{Attributes: map[string]string{"data-explain": "docs"}})

	tests := []struct {
		name     string
		selector string
		want     []string
	}{
		{"Exact", "#save", []string{"#save"}},
		{"AttributePresence", "[data-explain]", []string{"#help", "#docs"}},
		{"AttributeValue", `[data-explain="docs"]`, []string{"#docs"}},
		{"List", "#save, [data-explain]", []string{"#save", "#help", "#docs"}},
		{"NoMatch", ".missing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all, err := s.FindAll(ctx, tt.selector)
			require.NoError(t, err)
			var got []string
			for _, el := range all {
				got = append(got, el.Selector)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Find(ctx, ".missing")
	assert.True(t, errors.Is(err, domain.ErrElementNotFound))
}

func TestSurface_ScrollIntoView(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSurface()
	s.Add("#footer", domain.ElementInfo{Bounds: domain.Rect{X: 10, Y: 2000, Width: 100, Height: 40}})

	el, err := s.Find(ctx, "#footer")
	require.NoError(t, err)
	assert.False(t, el.InViewport)

	require.NoError(t, s.ScrollIntoView(ctx, "#footer"))
	el, err = s.Find(ctx, "#footer")
	require.NoError(t, err)
	assert.True(t, el.InViewport)
	assert.Equal(t, []string{"#footer"}, s.Scrolls())
}

func TestSurface_Subscribe(t *testing.T) {
	s := memory.NewSurface()
	var got []domain.UIEvent
	sub := s.Subscribe(func(ev domain.UIEvent) { got = append(got, ev) })

	s.Emit(domain.UIEvent{Kind: domain.UIKey, Key: "ArrowRight"})
	sub.Cancel()
	sub.Cancel()
	s.Emit(domain.UIEvent{Kind: domain.UIKey, Key: "ArrowLeft"})

	require.Len(t, got, 1)
	assert.Equal(t, "ArrowRight", got[0].Key)
	assert.Equal(t, 0, s.Subscribers())
}

func TestSurface_Screenshot(t *testing.T) {
	ctx := context.Background()
	s := memory.NewSurface()

	png, err := s.Screenshot(ctx, &domain.Rect{Width: 40, Height: 20})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	s.ScreenshotErr = errors.New("gpu lost")
	_, err = s.Screenshot(ctx, nil)
	assert.Error(t, err)
}
