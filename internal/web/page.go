// Package web holds the in-page script that renders widget layers and the
// Go side of its call protocol, shared by every transport that reaches a page.
package web

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/microcosm-cc/bluemonday"
)

// PageScript installs window.__narrate in a document.
//
//go:embed page.js
var PageScript string

// BridgeScript connects an installed page script to a websocket endpoint.
//
//go:embed bridge.js
var BridgeScript string

// BindingName is the global function the page script reports events through.
const BindingName = "__narrate_binding"

// CallFunc invokes a function of the page script with JSON-encodable args
// and returns its JSON result.
type CallFunc func(ctx context.Context, fn string, args ...any) (json.RawMessage, error)

// Page implements ports.Surface, ports.AudioPlayer, ports.NativeSpeaker and
// ports.Confirmer on top of a CallFunc. Transports feed what the page sends
// through the binding to Receive.
type Page struct {
	call   CallFunc
	logger *slog.Logger
	policy *bluemonday.Policy

	ctx    context.Context
	cancel context.CancelFunc

	handlersMu sync.Mutex
	handlers   map[int]func(domain.UIEvent)
	nextID     int
	events     chan domain.UIEvent

	playMu  sync.Mutex
	playing map[string]*playback
	seq     atomic.Uint64
}

var (
	_ ports.Surface       = (*Page)(nil)
	_ ports.AudioPlayer   = (*Page)(nil)
	_ ports.NativeSpeaker = (*Page)(nil)
	_ ports.Confirmer     = (*Page)(nil)
)

// EventQueueSize is how many UI events may wait for handlers before new
// ones are dropped.
const EventQueueSize = 64

// NewPage returns a Page that reaches the script through call.
//
// UI events are delivered to handlers on a dispatcher goroutine of their own,
// so handlers may call back into the page while the transport keeps reading
// replies.
func NewPage(call CallFunc, logger *slog.Logger) *Page {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Page{
		call:     call,
		logger:   logger,
		policy:   bluemonday.UGCPolicy(),
		ctx:      ctx,
		cancel:   cancel,
		handlers: make(map[int]func(domain.UIEvent)),
		events:   make(chan domain.UIEvent, EventQueueSize),
		playing:  make(map[string]*playback),
	}
	go p.dispatchEvents()
	return p
}

// Close ends every playback and stops event delivery.
func (p *Page) Close() error {
	p.cancel()
	p.playMu.Lock()
	pending := p.playing
	p.playing = make(map[string]*playback)
	p.playMu.Unlock()
	for _, pb := range pending {
		pb.finish(domain.ErrStopped)
	}
	return nil
}

// message is what the page script sends through the binding: either a UI
// event or a playback notification.
type message struct {
	domain.UIEvent
	Playback string `json:"playback,omitempty"`
	State    string `json:"state,omitempty"`
}

// Receive handles one binding payload.
func (p *Page) Receive(payload []byte) {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.logger.Warn("web: bad binding payload", "err", err)
		return
	}
	if msg.Playback != "" {
		p.playMu.Lock()
		pb := p.playing[msg.Playback]
		delete(p.playing, msg.Playback)
		p.playMu.Unlock()
		if pb != nil {
			var err error
			if msg.State != "ended" {
				err = fmt.Errorf("playback %s", msg.State)
			}
			pb.finish(err)
		}
		return
	}
	if msg.Kind == "" {
		return
	}
	p.emit(msg.UIEvent)
}

// emit queues ev for the dispatcher. It never blocks the caller, which is
// usually the goroutine reading replies from the page.
func (p *Page) emit(ev domain.UIEvent) {
	if p.ctx.Err() != nil {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("web: event queue full, dropping event", "kind", ev.Kind)
	}
}

func (p *Page) dispatchEvents() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case ev := <-p.events:
			p.handlersMu.Lock()
			handlers := make([]func(domain.UIEvent), 0, len(p.handlers))
			for _, h := range p.handlers {
				handlers = append(handlers, h)
			}
			p.handlersMu.Unlock()

			for _, h := range handlers {
				h(ev)
			}
		}
	}
}

// Subscribe registers a UI event handler.
func (p *Page) Subscribe(handler func(domain.UIEvent)) ports.Subscription {
	p.handlersMu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = handler
	p.handlersMu.Unlock()

	var once sync.Once
	return ports.SubscriptionFunc(func() {
		once.Do(func() {
			p.handlersMu.Lock()
			delete(p.handlers, id)
			p.handlersMu.Unlock()
		})
	})
}

// Subscribers reports how many handlers are registered.
func (p *Page) Subscribers() int {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	return len(p.handlers)
}

// Call invokes fn and decodes its result into out, which may be nil.
// It reports whether the result was non-null.
func (p *Page) Call(ctx context.Context, out any, fn string, args ...any) (bool, error) {
	raw, err := p.call(ctx, fn, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", fn, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("%s: decode result: %w", fn, err)
	}
	return true, nil
}

// truthy calls fn and reports whether it returned true.
func (p *Page) truthy(ctx context.Context, fn string, args ...any) (bool, string, error) {
	var v any
	if _, err := p.Call(ctx, &v, fn, args...); err != nil {
		return false, "", err
	}
	switch t := v.(type) {
	case bool:
		return t, "", nil
	case string:
		return false, t, nil
	default:
		return false, "", nil
	}
}

func (p *Page) Find(ctx context.Context, selector string) (domain.ElementInfo, error) {
	var info domain.ElementInfo
	ok, err := p.Call(ctx, &info, "find", selector)
	if err != nil {
		return domain.ElementInfo{}, err
	}
	if !ok {
		return domain.ElementInfo{}, fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return info, nil
}

func (p *Page) FindAll(ctx context.Context, selector string) ([]domain.ElementInfo, error) {
	var out []domain.ElementInfo
	_, err := p.Call(ctx, &out, "findAll", selector)
	return out, err
}

func (p *Page) Viewport(ctx context.Context) (domain.Rect, error) {
	var r domain.Rect
	_, err := p.Call(ctx, &r, "viewport")
	return r, err
}

// Offset returns the document scroll position.
func (p *Page) Offset(ctx context.Context) (domain.Rect, error) {
	var r domain.Rect
	_, err := p.Call(ctx, &r, "offset")
	return r, err
}

func (p *Page) ScrollIntoView(ctx context.Context, selector string) error {
	ok, _, err := p.truthy(ctx, "scroll", selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return nil
}

// Click dispatches a DOM click on the element.
func (p *Page) Click(ctx context.Context, selector string) error {
	ok, _, err := p.truthy(ctx, "click", selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return nil
}

func (p *Page) HTML(ctx context.Context, selector string) (string, error) {
	var html string
	ok, err := p.Call(ctx, &html, "html", selector)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrElementNotFound, selector)
	}
	return html, nil
}

// Screenshot is not available from inside a page.
func (p *Page) Screenshot(context.Context, *domain.Rect) ([]byte, error) {
	return nil, fmt.Errorf("screenshot: %w", domain.ErrUnsupported)
}

func (p *Page) Snapshot(ctx context.Context, maxDepth, maxChildren int, markerAttr string) (*domain.DOMNode, error) {
	var root domain.DOMNode
	ok, err := p.Call(ctx, &root, "snapshot", maxDepth, maxChildren, markerAttr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("snapshot: empty document")
	}
	return &root, nil
}

// Layer is the page script's view of a domain.Layer.
type Layer struct {
	Name       string            `json:"name"`
	Kind       domain.LayerKind  `json:"kind"`
	Rects      []domain.Rect     `json:"rects,omitempty"`
	Title      string            `json:"title,omitempty"`
	Body       string            `json:"body,omitempty"`
	Position   string            `json:"position,omitempty"`
	Messages   []domain.Message  `json:"messages,omitempty"`
	Visible    bool              `json:"visible"`
	Transition int64             `json:"transition"`
	Style      map[string]string `json:"style,omitempty"`
}

// EncodeLayer converts l for the page script. Body HTML is sanitized;
// titles and messages are rendered as text by the script.
func (p *Page) EncodeLayer(l domain.Layer) Layer {
	return Layer{
		Name:       l.Name,
		Kind:       l.Kind,
		Rects:      l.Rects,
		Title:      l.Title,
		Body:       p.policy.Sanitize(l.Body),
		Position:   l.Position,
		Messages:   l.Messages,
		Visible:    l.Visible,
		Transition: l.Transition.Milliseconds(),
		Style:      l.Style,
	}
}

func (p *Page) Draw(ctx context.Context, layer domain.Layer) error {
	_, err := p.Call(ctx, nil, "draw", p.EncodeLayer(layer))
	return err
}

func (p *Page) Clear(ctx context.Context, name string) error {
	_, err := p.Call(ctx, nil, "clear", name)
	return err
}

func (p *Page) TrackHover(ctx context.Context, selectors []string) error {
	if selectors == nil {
		selectors = []string{}
	}
	_, err := p.Call(ctx, nil, "hover", selectors)
	return err
}

// Confirm shows the browser's confirmation dialog.
func (p *Page) Confirm(ctx context.Context, message string) (bool, error) {
	ok, _, err := p.truthy(ctx, "confirm", message)
	return ok, err
}

// Play plays clip in the page.
func (p *Page) Play(ctx context.Context, clip domain.AudioClip, rate float64) (ports.Playback, error) {
	mime := clip.MIME
	if mime == "" {
		mime = "audio/mpeg"
	}
	src := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(clip.Data)

	pb := p.register()
	ok, reason, err := p.truthy(ctx, "play", pb.id, src, rate)
	if err != nil {
		p.unregister(pb.id)
		return nil, err
	}
	if !ok {
		p.unregister(pb.id)
		return nil, fmt.Errorf("play: %s", reason)
	}
	return pb, nil
}

// Speak uses the browser's speech synthesis.
func (p *Page) Speak(ctx context.Context, text, language string, rate float64) (ports.Playback, error) {
	pb := p.register()
	ok, _, err := p.truthy(ctx, "speak", pb.id, text, language, rate)
	if err != nil {
		p.unregister(pb.id)
		return nil, err
	}
	if !ok {
		p.unregister(pb.id)
		return nil, fmt.Errorf("speech synthesis: %w", domain.ErrUnsupported)
	}
	return pb, nil
}

// Playing reports how many playbacks have not ended.
func (p *Page) Playing() int {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	return len(p.playing)
}

func (p *Page) register() *playback {
	pb := &playback{
		p:    p,
		id:   "pb-" + strconv.FormatUint(p.seq.Add(1), 10),
		done: make(chan struct{}),
	}
	p.playMu.Lock()
	p.playing[pb.id] = pb
	p.playMu.Unlock()
	return pb
}

func (p *Page) unregister(id string) {
	p.playMu.Lock()
	delete(p.playing, id)
	p.playMu.Unlock()
}

// playback is a handle to audio playing in the page.
type playback struct {
	p    *Page
	id   string
	once sync.Once
	done chan struct{}
	err  error
}

func (pb *playback) finish(err error) {
	pb.once.Do(func() {
		pb.err = err
		close(pb.done)
	})
}

func (pb *playback) Done() <-chan struct{} { return pb.done }

func (pb *playback) Err() error {
	select {
	case <-pb.done:
		return pb.err
	default:
		return nil
	}
}

func (pb *playback) control(op string, rate float64) error {
	_, err := pb.p.Call(pb.p.ctx, nil, "control", pb.id, op, rate)
	return err
}

func (pb *playback) Pause() error  { return pb.control("pause", 0) }
func (pb *playback) Resume() error { return pb.control("resume", 0) }

func (pb *playback) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.New("rate must be positive")
	}
	return pb.control("rate", rate)
}

func (pb *playback) Stop() error {
	pb.p.unregister(pb.id)
	err := pb.control("stop", 0)
	pb.finish(domain.ErrStopped)
	return err
}
