package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/internal/web"
	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by bridge calls while no page is connected.
var ErrNotConnected = errors.New("no page connected")

// Bridge is a surface reached over a websocket: the host page includes
// /narrate.js, which connects back and executes layer and query calls.
// One page is served at a time; a new connection replaces the previous one.
//
// Screenshots are not available, so vision location falls back to hints.
type Bridge struct {
	*web.Page
	logger      *slog.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	pending map[uint64]chan reply
	seq     uint64
	ready   chan struct{}
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// WithCallTimeout bounds each call into the page. Default: 5s.
func WithCallTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.callTimeout = d }
}

func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		logger:      logging.NewNop(),
		callTimeout: 5 * time.Second,
		pending:     make(map[uint64]chan reply),
		ready:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.Page = web.NewPage(b.call, b.logger)
	return b
}

type request struct {
	ID   uint64 `json:"id"`
	Fn   string `json:"fn"`
	Args []any  `json:"args"`
}

type reply struct {
	Reply  *uint64         `json:"reply"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// Connected reports whether a page is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// WaitConnected blocks until a page attaches or ctx ends.
func (b *Bridge) WaitConnected(ctx context.Context) error {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bridge) call(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return nil, ErrNotConnected
	}
	b.seq++
	id := b.seq
	ch := make(chan reply, 1)
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	b.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(request{ID: id, Fn: fn, Args: args})
	b.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("bridge: send: %w", err)
	}

	timer := time.NewTimer(b.callTimeout)
	defer timer.Stop()
	select {
	case rep, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if rep.Error != "" {
			return nil, fmt.Errorf("bridge: %s", rep.Error)
		}
		return rep.Result, nil
	case <-timer.C:
		return nil, fmt.Errorf("bridge: %s: no reply after %s", fn, b.callTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeHTTP upgrades a page connection.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("bridge: upgrade failed", "err", err)
		return
	}

	b.mu.Lock()
	prev := b.conn
	b.conn = conn
	if prev == nil {
		close(b.ready)
	}
	b.failPendingLocked()
	b.mu.Unlock()
	if prev != nil {
		b.logger.Info("bridge: page replaced", "remote", r.RemoteAddr)
		prev.Close()
	} else {
		b.logger.Info("bridge: page connected", "remote", r.RemoteAddr)
	}

	defer b.detach(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var rep reply
		if err := json.Unmarshal(data, &rep); err == nil && rep.Reply != nil {
			b.mu.Lock()
			if ch := b.pending[*rep.Reply]; ch != nil {
				select {
				case ch <- rep:
				default:
				}
			}
			b.mu.Unlock()
			continue
		}
		b.Receive(data)
	}
}

func (b *Bridge) detach(conn *websocket.Conn) {
	conn.Close()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return
	}
	b.conn = nil
	b.ready = make(chan struct{})
	b.failPendingLocked()
	b.logger.Info("bridge: page disconnected")
}

func (b *Bridge) failPendingLocked() {
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
}

// ServeScript serves the page script followed by the bridge client.
func (b *Bridge) ServeScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "no-cache")
	fmt.Fprintln(w, web.PageScript)
	fmt.Fprintln(w, web.BridgeScript)
}

// Close disconnects the page and ends every playback.
func (b *Bridge) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return b.Page.Close()
}
