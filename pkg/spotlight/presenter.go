// Package spotlight draws the dimming overlay and the highlight box around tour elements.
package spotlight

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Layer names owned by the presenter.
const (
	OverlayLayer   = "narrate-overlay"
	HighlightLayer = "narrate-highlight"
	CaptionLayer   = "narrate-caption"
)

const (
	DefaultPadding     = 8
	DefaultTransition  = 300 * time.Millisecond
	DefaultSettleDelay = 350 * time.Millisecond
)

// Presenter owns the overlay, highlight and caption layers.
type Presenter struct {
	surface    ports.Surface
	padding    float64
	transition time.Duration
	settle     time.Duration
	style      map[string]string
	captions   string
	logger     *slog.Logger

	mu    sync.Mutex
	shown bool
	last  string
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithPadding sets the space between an element and its highlight box.
func WithPadding(px float64) Option {
	return func(p *Presenter) { p.padding = px }
}

// WithSettleDelay sets how long to wait for a scroll to settle before re-measuring.
func WithSettleDelay(d time.Duration) Option {
	return func(p *Presenter) { p.settle = d }
}

// WithColors sets the highlight border and overlay colors.
func WithColors(highlight, overlay string) Option {
	return func(p *Presenter) {
		p.style = map[string]string{"border-color": highlight, "background": overlay}
	}
}

// WithCaptions enables narration captions at the given position ("top" or "bottom").
// An empty position disables them.
func WithCaptions(position string) Option {
	return func(p *Presenter) { p.captions = position }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Presenter) { p.logger = l }
}

// New creates a Presenter drawing on surface.
func New(surface ports.Surface, opts ...Option) *Presenter {
	p := &Presenter{
		surface:    surface,
		padding:    DefaultPadding,
		transition: DefaultTransition,
		settle:     DefaultSettleDelay,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Show fades the overlay in.
func (p *Presenter) Show(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.surface.Draw(ctx, domain.Layer{
		Name:       OverlayLayer,
		Kind:       domain.LayerOverlay,
		Visible:    true,
		Transition: p.transition,
		Style:      p.style,
	}); err != nil {
		return fmt.Errorf("show overlay: %w", err)
	}
	p.shown = true
	return nil
}

// Hide removes the overlay, the highlight and any caption.
func (p *Presenter) Hide(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = ""
	p.shown = false
	for _, name := range []string{CaptionLayer, HighlightLayer, OverlayLayer} {
		if err := p.surface.Clear(ctx, name); err != nil {
			return fmt.Errorf("hide %s: %w", name, err)
		}
	}
	return nil
}

// Highlight draws the box around the element matched by selector. An element
// outside the viewport is scrolled into view and measured again, once.
func (p *Presenter) Highlight(ctx context.Context, selector string) error {
	el, err := p.surface.Find(ctx, selector)
	if err != nil {
		return fmt.Errorf("highlight: %w", err)
	}

	if !el.InViewport {
		if err := p.surface.ScrollIntoView(ctx, selector); err != nil {
			return fmt.Errorf("scroll into view: %w", err)
		}
		select {
		case <-time.After(p.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
		el, err = p.surface.Find(ctx, selector)
		if err != nil {
			return fmt.Errorf("highlight after scroll: %w", err)
		}
	}

	// A step superseded while measuring must not leave a box behind.
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.draw(ctx, el.Bounds); err != nil {
		return err
	}
	p.last = selector
	return nil
}

// UpdatePosition re-measures the last highlighted element. It is a no-op when
// nothing is highlighted.
func (p *Presenter) UpdatePosition(ctx context.Context) error {
	p.mu.Lock()
	selector := p.last
	p.mu.Unlock()
	if selector == "" {
		return nil
	}

	el, err := p.surface.Find(ctx, selector)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != selector {
		return nil
	}
	return p.draw(ctx, el.Bounds)
}

func (p *Presenter) draw(ctx context.Context, bounds domain.Rect) error {
	if err := p.surface.Draw(ctx, domain.Layer{
		Name:       HighlightLayer,
		Kind:       domain.LayerHighlight,
		Rects:      []domain.Rect{bounds.Pad(p.padding)},
		Visible:    true,
		Transition: p.transition,
		Style:      p.style,
	}); err != nil {
		return fmt.Errorf("draw highlight: %w", err)
	}
	return nil
}

// ClearHighlight removes the highlight box but keeps the overlay.
func (p *Presenter) ClearHighlight(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = ""
	return p.surface.Clear(ctx, HighlightLayer)
}

// Caption shows the step's narration as text when captions are enabled.
func (p *Presenter) Caption(ctx context.Context, step domain.Step) error {
	if p.captions == "" {
		return nil
	}
	return p.surface.Draw(ctx, domain.Layer{
		Name:     CaptionLayer,
		Kind:     domain.LayerCaption,
		Title:    step.Title,
		Body:     step.Narration,
		Position: p.captions,
		Visible:  true,
	})
}

// Track keeps the highlight aligned with its element across resizes and scrolls.
func (p *Presenter) Track() ports.Subscription {
	return p.surface.Subscribe(func(ev domain.UIEvent) {
		if ev.Kind != domain.UIResize && ev.Kind != domain.UIScroll {
			return
		}
		if err := p.UpdatePosition(context.Background()); err != nil {
			p.logger.Debug("highlight reposition failed", "err", err)
		}
	})
}

// Current returns the selector of the highlighted element, if any.
func (p *Presenter) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Shown reports whether the overlay is visible.
func (p *Presenter) Shown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shown
}
