// Package capture renders bounded-size images and structural snapshots of the surface.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Snapshot bounds.
const (
	MaxChildren = 10
	MaxText     = 80
)

// Capturer produces images and snapshots of a Surface.
type Capturer struct {
	surface  ports.Surface
	budget   int
	maxWidth int
	marker   string
	logger   *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithBudget sets the maximum encoded size in bytes.
func WithBudget(n int) Option {
	return func(c *Capturer) { c.budget = n }
}

// WithMaxWidth sets the width captures are scaled down to.
func WithMaxWidth(px int) Option {
	return func(c *Capturer) { c.maxWidth = px }
}

// WithMarker sets the attribute recorded on snapshot nodes.
func WithMarker(attr string) Option {
	return func(c *Capturer) { c.marker = attr }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) { c.logger = l }
}

// New creates a Capturer. The default budget is 500 KiB and the default width 1280px.
func New(surface ports.Surface, opts ...Option) *Capturer {
	c := &Capturer{
		surface:  surface,
		budget:   500 * 1024,
		maxWidth: 1280,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CaptureViewport renders the visible region. Render failures are returned, not retried.
func (c *Capturer) CaptureViewport(ctx context.Context) (domain.Image, error) {
	raw, err := c.surface.Screenshot(ctx, nil)
	if err != nil {
		return domain.Image{}, fmt.Errorf("render viewport: %w", err)
	}
	return c.encode(raw)
}

// CaptureElement renders the bounding box of one element.
func (c *Capturer) CaptureElement(ctx context.Context, selector string) (domain.Image, error) {
	el, err := c.surface.Find(ctx, selector)
	if err != nil {
		return domain.Image{}, fmt.Errorf("capture element: %w", err)
	}
	clip := el.Bounds
	raw, err := c.surface.Screenshot(ctx, &clip)
	if err != nil {
		return domain.Image{}, fmt.Errorf("render element %s: %w", selector, err)
	}
	return c.encode(raw)
}

func (c *Capturer) encode(raw []byte) (domain.Image, error) {
	img, err := Encode(raw, c.maxWidth, c.budget)
	if err != nil {
		return domain.Image{}, err
	}
	if img.Size > c.budget {
		c.logger.Debug("capture over budget at floor quality", "size", img.Size, "budget", c.budget)
	}
	return img, nil
}

// StructuralSnapshot returns a depth- and breadth-bounded tree of the page.
// It is supplementary context: callers must not depend on it.
func (c *Capturer) StructuralSnapshot(ctx context.Context, maxDepth int) (*domain.DOMNode, error) {
	root, err := c.surface.Snapshot(ctx, maxDepth, MaxChildren, c.marker)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return prune(root, maxDepth), nil
}

// prune enforces the bounds regardless of what the surface returned.
func prune(n *domain.DOMNode, depth int) *domain.DOMNode {
	if n == nil {
		return nil
	}
	out := &domain.DOMNode{
		Tag:     n.Tag,
		ID:      n.ID,
		Classes: n.Classes,
		Text:    truncate(n.Text, MaxText),
		Markers: n.Markers,
	}
	if depth <= 0 {
		return out
	}
	for i, child := range n.Children {
		if i >= MaxChildren {
			break
		}
		out.Children = append(out.Children, prune(child, depth-1))
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
