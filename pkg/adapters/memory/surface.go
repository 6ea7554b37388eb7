package memory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Surface implements ports.Surface over a page held in memory.
// It is used by tests and by dry runs of the CLI. Safe for concurrent use.
type Surface struct {
	mu       sync.Mutex
	elements map[string]domain.ElementInfo
	order    []string
	html     map[string]string
	viewport domain.Rect
	tree     *domain.DOMNode
	layers   map[string]domain.Layer
	draws    []domain.Layer
	clicks   []string
	scrolls  []string
	hover    []string

	// ScreenshotErr, when set, is returned by every Screenshot call.
	ScreenshotErr error

	handlersMu sync.Mutex
	handlers   map[int]func(domain.UIEvent)
	nextID     int
	dispatch   sync.Mutex
}

var _ ports.Surface = (*Surface)(nil)

// NewSurface creates an empty page with a 1280x800 viewport.
func NewSurface() *Surface {
	return &Surface{
		elements: make(map[string]domain.ElementInfo),
		html:     make(map[string]string),
		layers:   make(map[string]domain.Layer),
		handlers: make(map[int]func(domain.UIEvent)),
		viewport: domain.Rect{Width: 1280, Height: 800},
	}
}

// Add places an element on the page. The selector becomes its unique selector.
func (s *Surface) Add(selector string, info domain.ElementInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.Selector = selector
	if info.Tag == "" {
		info.Tag = "div"
	}
	info.InViewport = info.Bounds.Within(s.viewport)
	if _, ok := s.elements[selector]; !ok {
		s.order = append(s.order, selector)
	}
	s.elements[selector] = info
}

// Remove takes an element off the page.
func (s *Surface) Remove(selector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.elements, selector)
	for i, sel := range s.order {
		if sel == selector {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// SetHTML registers the outer HTML returned for selector.
func (s *Surface) SetHTML(selector, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.html[selector] = html
}

// SetTree registers the structural snapshot returned by Snapshot.
func (s *Surface) SetTree(root *domain.DOMNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = root
}

// SetViewport resizes the visible region.
func (s *Surface) SetViewport(r domain.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = r
	for k, el := range s.elements {
		el.InViewport = el.Bounds.Within(r)
		s.elements[k] = el
	}
}

// Move changes an element's bounds, as a layout change would.
func (s *Surface) Move(selector string, bounds domain.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[selector]
	if !ok {
		return
	}
	el.Bounds = bounds
	el.InViewport = bounds.Within(s.viewport)
	s.elements[selector] = el
}

func (s *Surface) Find(ctx context.Context, selector string) (domain.ElementInfo, error) {
	all, err := s.FindAll(ctx, selector)
	if err != nil {
		return domain.ElementInfo{}, err
	}
	if len(all) == 0 {
		return domain.ElementInfo{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return all[0], nil
}

// FindAll supports exact selectors, attribute presence selectors ("[name]")
// and comma-separated lists of both.
func (s *Surface) FindAll(_ context.Context, selector string) ([]domain.ElementInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ElementInfo
	seen := make(map[string]bool)
	for _, part := range strings.Split(selector, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		for _, sel := range s.order {
			if seen[sel] || !matches(part, sel, s.elements[sel]) {
				continue
			}
			seen[sel] = true
			out = append(out, s.elements[sel])
		}
	}
	return out, nil
}

func matches(selector, key string, el domain.ElementInfo) bool {
	if selector == key {
		return true
	}
	if strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]") {
		name := strings.TrimSuffix(strings.TrimPrefix(selector, "["), "]")
		if i := strings.Index(name, "="); i >= 0 {
			want := strings.Trim(name[i+1:], `"'`)
			got, ok := el.Attributes[name[:i]]
			return ok && got == want
		}
		_, ok := el.Attributes[name]
		return ok
	}
	return false
}

func (s *Surface) Viewport(_ context.Context) (domain.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, nil
}

// ScrollIntoView moves the element to the top of the viewport.
func (s *Surface) ScrollIntoView(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.elements[selector]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	s.scrolls = append(s.scrolls, selector)
	el.Bounds.Y = s.viewport.Y + 16
	if el.Bounds.X < s.viewport.X || el.Bounds.X+el.Bounds.Width > s.viewport.X+s.viewport.Width {
		el.Bounds.X = s.viewport.X + 16
	}
	el.InViewport = el.Bounds.Within(s.viewport)
	s.elements[selector] = el
	return nil
}

func (s *Surface) Click(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elements[selector]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	s.clicks = append(s.clicks, selector)
	return nil
}

// Screenshot renders a patterned PNG of the clip (or viewport) size.
func (s *Surface) Screenshot(_ context.Context, clip *domain.Rect) ([]byte, error) {
	s.mu.Lock()
	vp := s.viewport
	fail := s.ScreenshotErr
	s.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	area := vp
	if clip != nil {
		area = *clip
	}
	w, h := int(area.Width), int(area.Height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty capture region")
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// A busy pattern so compressed sizes respond to quality
			img.Set(x, y, color.RGBA{R: uint8(x * 7 ^ y*3), G: uint8(x*y + y), B: uint8(x ^ y*5), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Surface) Snapshot(_ context.Context, _, _ int, _ string) (*domain.DOMNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return &domain.DOMNode{Tag: "body"}, nil
	}
	return s.tree, nil
}

func (s *Surface) HTML(_ context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.html[selector]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return h, nil
}

func (s *Surface) Draw(_ context.Context, layer domain.Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[layer.Name] = layer
	s.draws = append(s.draws, layer)
	return nil
}

func (s *Surface) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.layers, name)
	return nil
}

func (s *Surface) TrackHover(_ context.Context, selectors []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hover = append([]string(nil), selectors...)
	return nil
}

// Subscribe registers a UI event handler.
func (s *Surface) Subscribe(handler func(domain.UIEvent)) ports.Subscription {
	s.handlersMu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.handlersMu.Unlock()

	var once sync.Once
	return ports.SubscriptionFunc(func() {
		once.Do(func() {
			s.handlersMu.Lock()
			delete(s.handlers, id)
			s.handlersMu.Unlock()
		})
	})
}

// Emit delivers an event to every subscriber, one at a time.
func (s *Surface) Emit(ev domain.UIEvent) {
	s.dispatch.Lock()
	defer s.dispatch.Unlock()

	s.handlersMu.Lock()
	hs := make([]func(domain.UIEvent), 0, len(s.handlers))
	for _, h := range s.handlers {
		hs = append(hs, h)
	}
	s.handlersMu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// Layer returns the current state of a layer.
func (s *Surface) Layer(name string) (domain.Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[name]
	return l, ok
}

// Draws returns every Draw call of the given kind, in order.
func (s *Surface) Draws(kind domain.LayerKind) []domain.Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Layer
	for _, l := range s.draws {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// Clicks returns the selectors clicked so far.
func (s *Surface) Clicks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicks...)
}

// Scrolls returns the selectors scrolled into view so far.
func (s *Surface) Scrolls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scrolls...)
}

// Hovered returns the selectors currently tracked for hover.
func (s *Surface) Hovered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.hover...)
}

// Subscribers returns the number of live subscriptions.
func (s *Surface) Subscribers() int {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	return len(s.handlers)
}
