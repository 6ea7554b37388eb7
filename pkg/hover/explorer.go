// Package hover reveals explanations for specially marked elements when the user hovers them.
//
// The explorer is independent of tour playback. It discovers explainable elements by a
// marker attribute (with -title, -hint and -priority companions) or by explicit selectors.
package hover

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Layer names owned by the explorer.
const (
	OutlineLayer = "narrate-hover-outlines"
	TooltipLayer = "narrate-hover-tooltip"
)

const (
	DefaultMarker       = "data-narrate-explain"
	DefaultTriggerDelay = 500 * time.Millisecond
)

// Target is an explainable element.
type Target struct {
	Selector string
	Title    string
	Hint     string
	Priority int
	Bounds   domain.Rect
}

// Speaker speaks an explanation aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Explorer indexes marked elements and shows their explanation on hover.
type Explorer struct {
	surface   ports.Surface
	marker    string
	selectors []string
	delay     time.Duration
	speaker   Speaker
	logger    *slog.Logger

	mu       sync.Mutex
	active   bool
	targets  []Target
	sub      ports.Subscription
	timer    *time.Timer
	pending  string
	showing  string
	gen      uint64
	cancelTx context.CancelFunc
}

// Option configures an Explorer.
type Option func(*Explorer)

// WithMarker sets the marker attribute name.
func WithMarker(attr string) Option {
	return func(e *Explorer) { e.marker = attr }
}

// WithSelectors adds explicitly configured explainable selectors.
func WithSelectors(selectors ...string) Option {
	return func(e *Explorer) { e.selectors = append(e.selectors, selectors...) }
}

// WithTriggerDelay sets how long the pointer must rest before the tooltip shows.
func WithTriggerDelay(d time.Duration) Option {
	return func(e *Explorer) { e.delay = d }
}

// WithSpeaker speaks each explanation when it is shown.
func WithSpeaker(s Speaker) Option {
	return func(e *Explorer) { e.speaker = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Explorer) { e.logger = l }
}

// New creates an inactive Explorer.
func New(surface ports.Surface, opts ...Option) *Explorer {
	e := &Explorer{
		surface: surface,
		marker:  DefaultMarker,
		delay:   DefaultTriggerDelay,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Activate indexes explainable elements, outlines them and starts listening for hovers.
// Activating an active explorer refreshes it.
func (e *Explorer) Activate(ctx context.Context) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		return e.Refresh(ctx)
	}
	e.mu.Unlock()

	targets, err := e.index(ctx)
	if err != nil {
		return err
	}
	if err := e.install(ctx, targets); err != nil {
		return err
	}

	sub := e.surface.Subscribe(e.handle)

	e.mu.Lock()
	e.active = true
	e.targets = targets
	e.sub = sub
	e.mu.Unlock()

	e.logger.Debug("hover explore activated", "targets", len(targets))
	return nil
}

// Deactivate removes outlines, tooltip and listeners.
func (e *Explorer) Deactivate(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	e.active = false
	e.targets = nil
	sub := e.sub
	e.sub = nil
	e.resetLocked()
	e.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if err := e.surface.TrackHover(ctx, nil); err != nil {
		return fmt.Errorf("untrack hover: %w", err)
	}
	if err := e.surface.Clear(ctx, TooltipLayer); err != nil {
		return err
	}
	return e.surface.Clear(ctx, OutlineLayer)
}

// Refresh re-indexes the page, for content that changed after activation.
func (e *Explorer) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	targets, err := e.index(ctx)
	if err != nil {
		return err
	}
	if err := e.install(ctx, targets); err != nil {
		return err
	}

	e.mu.Lock()
	e.targets = targets
	e.mu.Unlock()
	return nil
}

// Active reports whether the explorer is listening.
func (e *Explorer) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Targets returns the indexed elements, highest priority first.
func (e *Explorer) Targets() []Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Target(nil), e.targets...)
}

// Showing returns the selector whose tooltip is visible, if any.
func (e *Explorer) Showing() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.showing
}

func (e *Explorer) query() string {
	parts := []string{"[" + e.marker + "]"}
	parts = append(parts, e.selectors...)
	return strings.Join(parts, ", ")
}

func (e *Explorer) index(ctx context.Context) ([]Target, error) {
	els, err := e.surface.FindAll(ctx, e.query())
	if err != nil {
		return nil, fmt.Errorf("index explainable elements: %w", err)
	}

	targets := make([]Target, 0, len(els))
	for _, el := range els {
		t := Target{
			Selector: el.Selector,
			Title:    el.Attributes[e.marker+"-title"],
			Hint:     el.Attributes[e.marker+"-hint"],
			Bounds:   el.Bounds,
		}
		if t.Hint == "" {
			t.Hint = el.Attributes[e.marker]
		}
		if t.Title == "" {
			t.Title = strings.TrimSpace(el.Text)
		}
		if p, err := strconv.Atoi(el.Attributes[e.marker+"-priority"]); err == nil {
			t.Priority = p
		}
		if t.Hint == "" && t.Title == "" {
			continue
		}
		targets = append(targets, t)
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Priority > targets[j].Priority })
	return targets, nil
}

func (e *Explorer) install(ctx context.Context, targets []Target) error {
	rects := make([]domain.Rect, 0, len(targets))
	selectors := make([]string, 0, len(targets))
	for _, t := range targets {
		rects = append(rects, t.Bounds)
		selectors = append(selectors, t.Selector)
	}
	if err := e.surface.Draw(ctx, domain.Layer{
		Name:    OutlineLayer,
		Kind:    domain.LayerOutline,
		Rects:   rects,
		Visible: true,
	}); err != nil {
		return fmt.Errorf("draw outlines: %w", err)
	}
	if err := e.surface.TrackHover(ctx, selectors); err != nil {
		return fmt.Errorf("track hover: %w", err)
	}
	return nil
}

func (e *Explorer) handle(ev domain.UIEvent) {
	switch ev.Kind {
	case domain.UIHoverEnter:
		e.enter(ev.Target)
	case domain.UIHoverLeave:
		e.leave(ev.Target)
	}
}

func (e *Explorer) enter(selector string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	target, ok := e.lookupLocked(selector)
	if !ok {
		return
	}
	e.resetLocked()
	e.pending = selector
	gen := e.gen
	e.timer = time.AfterFunc(e.delay, func() { e.show(gen, target) })
}

func (e *Explorer) leave(selector string) {
	e.mu.Lock()
	if selector != e.pending && selector != e.showing {
		e.mu.Unlock()
		return
	}
	wasShowing := e.showing != ""
	e.resetLocked()
	e.mu.Unlock()

	if wasShowing {
		if err := e.surface.Clear(context.Background(), TooltipLayer); err != nil {
			e.logger.Debug("clear tooltip failed", "err", err)
		}
	}
}

// resetLocked cancels any pending or visible explanation.
func (e *Explorer) resetLocked() {
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.cancelTx != nil {
		e.cancelTx()
		e.cancelTx = nil
	}
	e.pending = ""
	e.showing = ""
}

func (e *Explorer) show(gen uint64, t Target) {
	e.mu.Lock()
	if gen != e.gen || !e.active {
		e.mu.Unlock()
		return
	}
	e.pending = ""
	e.showing = t.Selector
	var speakCtx context.Context
	if e.speaker != nil && t.Hint != "" {
		speakCtx, e.cancelTx = context.WithCancel(context.Background())
	}
	e.mu.Unlock()

	if err := e.surface.Draw(context.Background(), domain.Layer{
		Name:     TooltipLayer,
		Kind:     domain.LayerTooltip,
		Rects:    []domain.Rect{t.Bounds},
		Title:    t.Title,
		Body:     t.Hint,
		Position: "bottom",
		Visible:  true,
	}); err != nil {
		e.logger.Warn("draw hover tooltip failed", "err", err)
		return
	}

	e.mu.Lock()
	stale := gen != e.gen
	e.mu.Unlock()
	if stale {
		// The pointer left while the tooltip was being drawn
		_ = e.surface.Clear(context.Background(), TooltipLayer)
		return
	}

	if speakCtx != nil {
		if err := e.speaker.Speak(speakCtx, t.Hint); err != nil && speakCtx.Err() == nil {
			e.logger.Debug("hover narration ended", "err", err)
		}
	}
}

func (e *Explorer) lookupLocked(selector string) (Target, bool) {
	for _, t := range e.targets {
		if t.Selector == selector {
			return t, true
		}
	}
	return Target{}, false
}
