package domain

import (
	"context"
	"time"
)

// EventType defines the category of an analytics event.
type EventType string

const (
	EventInit          EventType = "init"
	EventStart         EventType = "start"
	EventStepView      EventType = "step_view"
	EventVisionSuccess EventType = "vision_success"
	EventComplete      EventType = "complete"
	EventExit          EventType = "exit"
)

// AnalyticsEvent is emitted fire-and-forget to an external collector.
type AnalyticsEvent struct {
	Type      EventType      `json:"type"`
	TourID    string         `json:"tourId,omitempty"`
	StepID    string         `json:"stepId,omitempty"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// StepEvent describes entry into or exit from a step.
type StepEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	TourID    string    `json:"tour_id"`
	StepID    string    `json:"step_id"`
	Index     int       `json:"index"`
}

// StateEvent describes a playback state transition.
type StateEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	From      PlaybackState `json:"from"`
	To        PlaybackState `json:"to"`
}

// LocateEvent describes how a step's element was resolved.
type LocateEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	StepID    string          `json:"step_id"`
	Location  ElementLocation `json:"location"`
	Resolved  string          `json:"resolved,omitempty"`
	Source    string          `json:"source"` // vision, hint, none
}

// LifecycleHooks defines callbacks for orchestrator observability.
type LifecycleHooks struct {
	OnStepEnter   func(context.Context, *StepEvent)
	OnStepLeave   func(context.Context, *StepEvent)
	OnStateChange func(context.Context, *StateEvent)
	OnLocate      func(context.Context, *LocateEvent)
}
