package domain

import "errors"

// ErrTourNotFound is returned when no tour matches the requested id.
var ErrTourNotFound = errors.New("tour not found")

// ErrElementNotFound is returned when a selector matches nothing on the surface.
var ErrElementNotFound = errors.New("element not found")

// ErrWaitTimeout is returned when a wait-for-element precondition expires.
var ErrWaitTimeout = errors.New("timed out waiting for element")

// ErrUnknownAction is returned when a step action has an unrecognized kind.
var ErrUnknownAction = errors.New("unknown action")

// ErrPreempted is returned by a narration that was replaced by a newer one.
var ErrPreempted = errors.New("narration preempted")

// ErrStopped is returned by a playback that was stopped before it finished.
var ErrStopped = errors.New("playback stopped")

// ErrUnsupported is returned by surfaces that lack a capability.
var ErrUnsupported = errors.New("not supported")

// ErrInvalidTour is returned when a tour definition fails validation.
var ErrInvalidTour = errors.New("invalid tour")
