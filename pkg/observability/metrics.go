package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records tour activity as Prometheus series.
// It is both an analytics sink and a source of lifecycle hooks.
type Metrics struct {
	Events       *prometheus.CounterVec
	StepVisits   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	Locates      *prometheus.CounterVec
	SpeechCache  *prometheus.CounterVec
	Transitions  *prometheus.CounterVec

	mu      sync.Mutex
	entered map[string]time.Time
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrate_events_total",
			Help: "Analytics events emitted, by type",
		}, []string{"type"}),
		StepVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrate_step_visits_total",
			Help: "Total number of step visits",
		}, []string{"tour"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "narrate_step_duration_seconds",
			Help:    "Time spent on a step, from entry to leave",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"tour"}),
		Locates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrate_locate_total",
			Help: "Element resolutions, by source (vision, hint, none)",
		}, []string{"source"}),
		SpeechCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrate_speech_cache_total",
			Help: "Narration cache lookups, by result",
		}, []string{"result"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrate_state_transitions_total",
			Help: "Playback state transitions, by target state",
		}, []string{"to"}),
		entered: make(map[string]time.Time),
	}

	for _, c := range []prometheus.Collector{m.Events, m.StepVisits, m.StepDuration, m.Locates, m.SpeechCache, m.Transitions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Emit implements ports.AnalyticsSink.
func (m *Metrics) Emit(_ context.Context, ev domain.AnalyticsEvent) error {
	m.Events.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// ObserveCache records a narration cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.SpeechCache.WithLabelValues(result).Inc()
}

// Hooks returns lifecycle hooks feeding the step, locate and transition series.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, e *domain.StepEvent) {
			m.StepVisits.WithLabelValues(e.TourID).Inc()
			m.mu.Lock()
			m.entered[e.SessionID] = e.Timestamp
			m.mu.Unlock()
		},
		OnStepLeave: func(_ context.Context, e *domain.StepEvent) {
			m.mu.Lock()
			start, ok := m.entered[e.SessionID]
			delete(m.entered, e.SessionID)
			m.mu.Unlock()
			if ok {
				m.StepDuration.WithLabelValues(e.TourID).Observe(e.Timestamp.Sub(start).Seconds())
			}
		},
		OnStateChange: func(_ context.Context, e *domain.StateEvent) {
			m.Transitions.WithLabelValues(string(e.To)).Inc()
		},
		OnLocate: func(_ context.Context, e *domain.LocateEvent) {
			m.Locates.WithLabelValues(e.Source).Inc()
		},
	}
}
