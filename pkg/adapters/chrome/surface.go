package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/internal/web"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Surface implements ports.Surface over a Chrome tab. It also plays audio,
// speaks with the browser voice and asks confirmations in the page.
//
// Layer rendering and events go through the shared page script; clicks,
// markup and screenshots use the DevTools protocol directly.
type Surface struct {
	*web.Page
	page   *rod.Page
	cancel context.CancelFunc
}

var (
	_ ports.Surface       = (*Surface)(nil)
	_ ports.AudioPlayer   = (*Surface)(nil)
	_ ports.NativeSpeaker = (*Surface)(nil)
	_ ports.Confirmer     = (*Surface)(nil)
)

type options struct {
	logger *slog.Logger
}

// Option configures a Surface.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewSurface installs the page script on page, now and on every future
// document, and starts listening for events.
func NewSurface(page *rod.Page, opts ...Option) (*Surface, error) {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Surface{page: page}
	s.Page = web.NewPage(s.eval, o.logger)

	if err := (proto.RuntimeAddBinding{Name: web.BindingName}).Call(page); err != nil {
		return nil, fmt.Errorf("chrome: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(web.PageScript); err != nil {
		return nil, fmt.Errorf("chrome: install page script: %w", err)
	}
	if _, err := page.Eval("() => {\n" + web.PageScript + "\n}"); err != nil {
		return nil, fmt.Errorf("chrome: inject page script: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != web.BindingName {
			return
		}
		s.Receive([]byte(e.Payload))
	})()
	return s, nil
}

// Close stops listening and ends every playback.
func (s *Surface) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.Page.Close()
}

// eval invokes a function of the page script.
func (s *Surface) eval(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	res, err := s.page.Context(ctx).Eval(`(fn, ...args) => window.__narrate[fn](...args)`, append([]any{fn}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("chrome: %w", err)
	}
	return json.RawMessage(res.Value.JSON("", "")), nil
}

func (s *Surface) element(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("chrome: query %s: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return el, nil
}

// Click performs a trusted mouse click on the element.
func (s *Surface) Click(ctx context.Context, selector string) error {
	el, err := s.element(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (s *Surface) HTML(ctx context.Context, selector string) (string, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.HTML()
}

// Screenshot captures clip, given in viewport coordinates, or the viewport.
func (s *Surface) Screenshot(ctx context.Context, clip *domain.Rect) ([]byte, error) {
	req := &proto.PageCaptureScreenshot{Format: proto.PageCaptureScreenshotFormatPng}
	if clip != nil {
		off, err := s.Offset(ctx)
		if err != nil {
			return nil, err
		}
		req.Clip = &proto.PageViewport{X: clip.X + off.X, Y: clip.Y + off.Y, Width: clip.Width, Height: clip.Height, Scale: 1}
	}
	return s.page.Context(ctx).Screenshot(false, req)
}
