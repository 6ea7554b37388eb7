// Package runtime holds the tour orchestrator: the state machine that sequences
// steps, owns the components that play them and arbitrates user interruptions.
//
// Every step runs in its own goroutine. Continuations re-validate themselves at
// checkpoints against a generation counter bumped by every interruption, so work
// belonging to a step that is no longer current becomes a no-op.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// ErrDestroyed is returned by operations on a destroyed engine.
var ErrDestroyed = errors.New("engine destroyed")

// Narrator plays step narration. It is satisfied by *speech.Synthesizer.
type Narrator interface {
	Speak(ctx context.Context, text string) error
	Pause()
	Resume()
	Stop()
}

// Locator resolves element descriptions. It is satisfied by *vision.Client.
type Locator interface {
	Locate(ctx context.Context, req domain.LocateRequest) domain.ElementLocation
}

// Capturer renders the page for the vision model. It is satisfied by *capture.Capturer.
type Capturer interface {
	CaptureViewport(ctx context.Context) (domain.Image, error)
}

// Presenter owns the spotlight layers. It is satisfied by *spotlight.Presenter.
type Presenter interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	Highlight(ctx context.Context, selector string) error
	ClearHighlight(ctx context.Context) error
	Caption(ctx context.Context, step domain.Step) error
}

// Conversation is the question modal. It is satisfied by *conversation.Overlay.
type Conversation interface {
	ShowTrigger(ctx context.Context) error
	HideTrigger(ctx context.Context) error
	Open(ctx context.Context, tc domain.TourContext) error
	Close(ctx context.Context) error
	Dismiss(ctx context.Context) error
	Ask(ctx context.Context, question string) error
	Listen(ctx context.Context) (ports.Subscription, error)
	IsOpen() bool
	SetContinue(fn func())
}

// Tracker records analytics events. It is satisfied by *analytics.Tracker.
type Tracker interface {
	Track(typ domain.EventType, tourID, stepID string, meta map[string]any)
	SessionID() string
}

// Deps are the collaborators of an Engine. Tours, Surface, Narrator and
// Spotlight are required. A nil Vision disables element location through the
// model and uses selector hints directly.
type Deps struct {
	Tours        ports.TourLoader
	Surface      ports.Surface
	Narrator     Narrator
	Spotlight    Presenter
	Capturer     Capturer
	Vision       Locator
	Conversation Conversation
	Analytics    Tracker
	Confirmer    ports.Confirmer
}

// Engine is the tour orchestrator. It is safe for concurrent use.
type Engine struct {
	Deps

	logger        *slog.Logger
	hooks         domain.LifecycleHooks
	stepDelay     time.Duration
	waitTimeout   time.Duration
	pollInterval  time.Duration
	allowFallback bool
	logLocations  bool
	keyboard      bool
	bindings      map[string]Command
	confirmExit   string

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      domain.PlaybackState
	resumeTo   domain.PlaybackState
	wake       chan struct{}
	tour       *domain.TourDefinition
	index      int
	tc         domain.TourContext
	gen        uint64
	stepCancel context.CancelFunc
	advance    *time.Timer
	pending    time.Duration // post-narration delay owed to the current step
	awaiting   bool
	entered    *stepRef
	destroyed  bool
	events     ports.Subscription
	listening  ports.Subscription
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithStepDelay sets the post-narration delay for steps that declare no duration.
func WithStepDelay(d time.Duration) Option {
	return func(e *Engine) { e.stepDelay = d }
}

// WithWaitTimeout sets the timeout for wait preconditions that declare none.
func WithWaitTimeout(d time.Duration) Option {
	return func(e *Engine) { e.waitTimeout = d }
}

// WithPollInterval sets how often wait preconditions look for their element.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// WithVisionFallback controls whether a failed vision location falls back to the selector hint.
func WithVisionFallback(enabled bool) Option {
	return func(e *Engine) { e.allowFallback = enabled }
}

// WithLocationLogging logs every element resolution at info level.
func WithLocationLogging(enabled bool) Option {
	return func(e *Engine) { e.logLocations = enabled }
}

// WithKeyboard enables key bindings. A nil map keeps DefaultBindings.
func WithKeyboard(enabled bool, bindings map[string]Command) Option {
	return func(e *Engine) {
		e.keyboard = enabled
		if bindings != nil {
			e.bindings = bindings
		}
	}
}

// WithExitConfirmation asks the Confirmer before stopping a tour.
// An empty message disables the confirmation.
func WithExitConfirmation(message string) Option {
	return func(e *Engine) { e.confirmExit = message }
}

// NewEngine creates an idle engine and records the session's init event.
func NewEngine(deps Deps, opts ...Option) (*Engine, error) {
	switch {
	case deps.Tours == nil:
		return nil, fmt.Errorf("engine: tour loader is required")
	case deps.Surface == nil:
		return nil, fmt.Errorf("engine: surface is required")
	case deps.Narrator == nil:
		return nil, fmt.Errorf("engine: narrator is required")
	case deps.Spotlight == nil:
		return nil, fmt.Errorf("engine: spotlight is required")
	}

	e := &Engine{
		Deps:          deps,
		logger:        logging.NewNop(),
		stepDelay:     domain.DefaultStepDelay,
		waitTimeout:   domain.DefaultWaitTimeout,
		pollInterval:  50 * time.Millisecond,
		allowFallback: true,
		keyboard:      true,
		bindings:      DefaultBindings(),
		state:         domain.StateIdle,
		wake:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.base, e.cancel = context.WithCancel(context.Background())

	if e.Conversation != nil {
		e.Conversation.SetContinue(e.continueTour)
	}
	e.track(domain.EventInit, "", "", nil)
	return e, nil
}

// SessionID returns the analytics session id, or "" without analytics.
func (e *Engine) SessionID() string {
	if e.Analytics == nil {
		return ""
	}
	return e.Analytics.SessionID()
}

// State returns the playback state.
func (e *Engine) State() domain.PlaybackState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Context returns the tour context of the current step.
func (e *Engine) Context() domain.TourContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tc
}

// Index returns the current step index. It equals the step count once a tour completes.
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// Tour returns the tour being played, or nil.
func (e *Engine) Tour() *domain.TourDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tour
}

// setStateLocked moves to a new state and wakes parked checkpoints.
// The returned event must be fired after the lock is released.
func (e *Engine) setStateLocked(to domain.PlaybackState) *domain.StateEvent {
	if e.state == to {
		return nil
	}
	ev := &domain.StateEvent{Timestamp: time.Now(), SessionID: e.SessionID(), From: e.state, To: to}
	e.state = to
	close(e.wake)
	e.wake = make(chan struct{})
	return ev
}

// haltLocked invalidates the running step: every continuation holding the old
// generation becomes a no-op and the auto-advance is dropped.
func (e *Engine) haltLocked() {
	e.gen++
	if e.stepCancel != nil {
		e.stepCancel()
		e.stepCancel = nil
	}
	e.stopAdvanceLocked()
	e.awaiting = false
}

func (e *Engine) stopAdvanceLocked() {
	if e.advance != nil {
		e.advance.Stop()
		e.advance = nil
	}
}

func (e *Engine) fireState(ctx context.Context, ev *domain.StateEvent) {
	if ev == nil {
		return
	}
	e.logger.Debug("state changed", "from", ev.From, "to", ev.To)
	if e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(ctx, ev)
	}
}

func (e *Engine) fireStep(ctx context.Context, enter bool, tourID string, ps domain.PlacedStep, index int) {
	ev := &domain.StepEvent{
		Timestamp: time.Now(),
		SessionID: e.SessionID(),
		TourID:    tourID,
		StepID:    ps.ID,
		Index:     index,
	}
	if enter && e.hooks.OnStepEnter != nil {
		e.hooks.OnStepEnter(ctx, ev)
	}
	if !enter && e.hooks.OnStepLeave != nil {
		e.hooks.OnStepLeave(ctx, ev)
	}
}

// stepRef identifies the step whose enter hook has fired.
type stepRef struct {
	tourID string
	step   domain.PlacedStep
	index  int
}

// leaveLocked detaches the entered step. Fire the result with fireLeave after unlocking.
func (e *Engine) leaveLocked() *stepRef {
	ref := e.entered
	e.entered = nil
	return ref
}

func (e *Engine) fireLeave(ctx context.Context, ref *stepRef) {
	if ref != nil {
		e.fireStep(ctx, false, ref.tourID, ref.step, ref.index)
	}
}

func (e *Engine) track(typ domain.EventType, tourID, stepID string, meta map[string]any) {
	if e.Analytics != nil {
		e.Analytics.Track(typ, tourID, stepID, meta)
	}
}
