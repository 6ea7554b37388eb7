// Package analytics emits fire-and-forget session events to external collectors.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/google/uuid"
)

// DefaultQueueSize bounds the events waiting for delivery.
const DefaultQueueSize = 256

// Tracker owns a session id and delivers its events in order, best effort.
// Events are dropped when the queue is full; nothing is retried.
type Tracker struct {
	sessionID string
	sink      ports.AnalyticsSink
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan domain.AnalyticsEvent
	done   chan struct{}
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithQueueSize sets the delivery queue size.
func WithQueueSize(n int) TrackerOption {
	return func(t *Tracker) { t.queue = make(chan domain.AnalyticsEvent, n) }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker with a fresh session id. A nil sink discards events.
func NewTracker(sink ports.AnalyticsSink, opts ...TrackerOption) *Tracker {
	if sink == nil {
		sink = Discard
	}
	t := &Tracker{
		sessionID: uuid.NewString(),
		sink:      sink,
		logger:    logging.NewNop(),
		now:       time.Now,
		queue:     make(chan domain.AnalyticsEvent, DefaultQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.deliver()
	return t
}

// SessionID returns the id shared by every event of this tracker.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Track enqueues an event. It never blocks.
func (t *Tracker) Track(typ domain.EventType, tourID, stepID string, meta map[string]any) {
	ev := domain.AnalyticsEvent{
		Type:      typ,
		TourID:    tourID,
		StepID:    stepID,
		SessionID: t.sessionID,
		Metadata:  meta,
		Timestamp: t.now(),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- ev:
	default:
		t.logger.Debug("analytics queue full, dropping event", "type", typ)
	}
}

func (t *Tracker) deliver() {
	defer close(t.done)
	for ev := range t.queue {
		if err := t.sink.Emit(context.Background(), ev); err != nil {
			t.logger.Debug("analytics emit failed", "type", ev.Type, "err", err)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
