package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/gorilla/websocket"
)

// Event types carried on the /events stream.
const (
	EventStepEnter = "step_enter"
	EventStepLeave = "step_leave"
	EventState     = "state"
	EventLocate    = "locate"
)

// Event is one lifecycle notification.
type Event struct {
	Type   string              `json:"type"`
	Step   *domain.StepEvent   `json:"step,omitempty"`
	State  *domain.StateEvent  `json:"state,omitempty"`
	Locate *domain.LocateEvent `json:"locate,omitempty"`
}

// topic groups event types for the watch filter.
func (e Event) topic() string {
	switch e.Type {
	case EventStepEnter, EventStepLeave:
		return "step"
	default:
		return e.Type
	}
}

// StreamManager fans lifecycle events out to websocket subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StreamManager{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe() (<-chan Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Event, 16)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Len reports the number of subscribers.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

func (sm *StreamManager) Broadcast(ev Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("events: client buffer full, dropping message", "type", ev.Type)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast every event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			sm.Broadcast(Event{Type: EventStepEnter, Step: ev})
		},
		OnStepLeave: func(_ context.Context, ev *domain.StepEvent) {
			sm.Broadcast(Event{Type: EventStepLeave, Step: ev})
		},
		OnStateChange: func(_ context.Context, ev *domain.StateEvent) {
			sm.Broadcast(Event{Type: EventState, State: ev})
		},
		OnLocate: func(_ context.Context, ev *domain.LocateEvent) {
			sm.Broadcast(Event{Type: EventLocate, Locate: ev})
		},
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

const writeWait = 10 * time.Second

// SubscribeEvents handles GET /events. The connection is upgraded to a
// websocket and receives one JSON Event per message. The optional watch
// query (comma-separated: step, state, locate) filters by topic.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	var watch map[string]bool
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watch = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			watch[strings.TrimSpace(t)] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("events: upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	events, cancel := s.Streams.Subscribe()
	defer cancel()
	s.logger.Debug("events: client connected", "remote", r.RemoteAddr)

	// The client never sends; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			s.logger.Debug("events: client disconnected", "remote", r.RemoteAddr)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if watch != nil && !watch[ev.topic()] {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("events: write failed", "err", err)
				return
			}
		}
	}
}
