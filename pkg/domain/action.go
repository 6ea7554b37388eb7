package domain

import (
	"fmt"
	"time"
)

// ActionKind tags the variant of a step's post-highlight action.
type ActionKind string

const (
	ActionClick  ActionKind = "click"
	ActionScroll ActionKind = "scroll"
	ActionWait   ActionKind = "wait"
)

// Action is performed after a step's narration has finished.
// Selector defaults to the resolved element of the step when empty.
type Action struct {
	Kind     ActionKind    `json:"type" yaml:"type"`
	Selector string        `json:"selector,omitempty" yaml:"selector,omitempty"`
	Delay    time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// ActionHandler performs one variant of an Action.
type ActionHandler[T any] struct {
	Click  func(selector string) T
	Scroll func(selector string) T
	Wait   func(d time.Duration) T
}

// Dispatch calls the handler matching the action's kind.
// Every kind must be handled; unknown kinds return ErrUnknownAction.
func Dispatch[T any](a Action, fallbackSelector string, h ActionHandler[T]) (T, error) {
	var zero T
	sel := a.Selector
	if sel == "" {
		sel = fallbackSelector
	}
	switch a.Kind {
	case ActionClick:
		return h.Click(sel), nil
	case ActionScroll:
		return h.Scroll(sel), nil
	case ActionWait:
		return h.Wait(a.Delay), nil
	default:
		return zero, fmt.Errorf("%w: %q", ErrUnknownAction, a.Kind)
	}
}

// Valid reports whether the kind is one of the known variants.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionClick, ActionScroll, ActionWait:
		return true
	}
	return false
}
