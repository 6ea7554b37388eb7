package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/vision"
)

// Start plays the tour with the given id, or the first available tour when id is
// empty. A missing tour is logged and leaves the engine idle; it is not an error.
func (e *Engine) Start(ctx context.Context, tourID string) error {
	err := e.StartStrict(ctx, tourID)
	if errors.Is(err, domain.ErrTourNotFound) {
		e.logger.Warn("no tour to start", "tour", tourID, "err", err)
		return nil
	}
	return err
}

// StartStrict is Start, but reports a missing tour as domain.ErrTourNotFound.
func (e *Engine) StartStrict(ctx context.Context, tourID string) error {
	tour, err := e.selectTour(ctx, tourID)
	if err != nil {
		return err
	}
	if err := e.begin(ctx, &tour); err != nil {
		return err
	}
	e.logger.Info("tour started", "tour", tour.ID, "steps", tour.TotalSteps())
	return nil
}

func (e *Engine) selectTour(ctx context.Context, id string) (domain.TourDefinition, error) {
	if id != "" {
		t, err := e.Tours.Tour(ctx, id)
		if err != nil {
			return domain.TourDefinition{}, fmt.Errorf("start %q: %w", id, err)
		}
		return t, nil
	}
	tours, err := e.Tours.Tours(ctx)
	if err != nil {
		return domain.TourDefinition{}, fmt.Errorf("list tours: %w", err)
	}
	if len(tours) == 0 {
		return domain.TourDefinition{}, fmt.Errorf("no tours configured: %w", domain.ErrTourNotFound)
	}
	return tours[0], nil
}

// begin resets to step 0 of tour and plays it. Restart uses it with the current tour.
func (e *Engine) begin(ctx context.Context, tour *domain.TourDefinition) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	e.haltLocked()
	gen := e.gen
	left := e.leaveLocked()
	e.tour = tour
	ev := e.setStateLocked(domain.StatePlaying)
	e.mu.Unlock()

	e.Narrator.Stop()
	e.fireLeave(ctx, left)
	if e.Conversation != nil && e.Conversation.IsOpen() {
		if err := e.Conversation.Dismiss(ctx); err != nil {
			e.logger.Debug("dismiss conversation failed", "err", err)
		}
	}
	if err := e.Spotlight.Show(ctx); err != nil {
		e.logger.Warn("show spotlight failed", "err", err)
	}
	if e.Conversation != nil {
		if err := e.Conversation.ShowTrigger(ctx); err != nil {
			e.logger.Warn("show conversation trigger failed", "err", err)
		}
	}
	e.fireState(ctx, ev)
	e.track(domain.EventStart, tour.ID, "", map[string]any{"name": tour.Name, "totalSteps": tour.TotalSteps()})

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen || e.state == domain.StateIdle || e.destroyed {
		// Superseded while the layers were being drawn
		return nil
	}
	e.launchLocked(0)
	return nil
}

// launchLocked makes index current and plays it in a new goroutine under a
// fresh generation. The caller holds e.mu.
func (e *Engine) launchLocked(index int) {
	e.haltLocked()
	e.index = index
	e.tc = domain.NewTourContext(e.tour, index)
	gen := e.gen
	ctx, cancel := context.WithCancel(e.base)
	e.stepCancel = cancel
	tour := e.tour

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.playStep(ctx, gen, tour, index)
	}()
}

// playStep runs one step: record the view, refresh the context, satisfy the
// wait precondition, resolve and highlight the element, narrate, perform the
// post-action, then schedule the next step. Every suspension is followed by a
// checkpoint, which parks while paused and abandons the step once it is stale.
func (e *Engine) playStep(ctx context.Context, gen uint64, tour *domain.TourDefinition, index int) {
	// Parked here when launched into a paused tour or an open conversation
	if !e.checkpoint(ctx, gen) {
		return
	}
	steps := tour.Steps()
	if index >= len(steps) {
		e.complete(ctx, gen, tour)
		return
	}
	ps := steps[index]

	if !e.enter(ctx, gen, tour, ps, index) {
		return
	}
	e.track(domain.EventStepView, tour.ID, ps.ID, map[string]any{"index": index, "page": ps.Page.ID})

	if err := e.Spotlight.Caption(ctx, ps.Step); err != nil {
		e.logger.Debug("caption failed", "err", err)
	}

	if ps.WaitFor != nil {
		if err := e.waitFor(ctx, *ps.WaitFor); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Warn("wait precondition not met, continuing", "step", ps.ID, "err", err)
		}
	}
	if !e.checkpoint(ctx, gen) {
		return
	}

	selector := e.locate(ctx, gen, tour, ps, index)
	if !e.checkpoint(ctx, gen) {
		return
	}

	if selector != "" {
		if err := e.Spotlight.Highlight(ctx, selector); err != nil {
			e.logger.Warn("highlight failed", "step", ps.ID, "selector", selector, "err", err)
		}
	} else {
		e.logger.Warn("no element resolved, narrating without highlight", "step", ps.ID)
		if err := e.Spotlight.ClearHighlight(ctx); err != nil {
			e.logger.Debug("clear highlight failed", "err", err)
		}
	}
	if !e.checkpoint(ctx, gen) {
		return
	}

	if !e.narrate(ctx, gen, ps) {
		return
	}

	if ps.Action != nil {
		if err := e.perform(ctx, *ps.Action, selector); err != nil && ctx.Err() == nil {
			e.logger.Warn("step action failed", "step", ps.ID, "action", ps.Action.Kind, "err", err)
		}
		if !e.checkpoint(ctx, gen) {
			return
		}
	}

	e.scheduleAdvance(gen, ps.Delay(e.stepDelay))
}

// enter marks ps as the entered step if gen is still current.
func (e *Engine) enter(ctx context.Context, gen uint64, tour *domain.TourDefinition, ps domain.PlacedStep, index int) bool {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return false
	}
	e.entered = &stepRef{tourID: tour.ID, step: ps, index: index}
	e.mu.Unlock()

	e.logger.Debug("step entered", "tour", tour.ID, "step", ps.ID, "index", index)
	e.fireStep(ctx, true, tour.ID, ps, index)
	return true
}

// checkpoint reports whether the step started under gen may continue. It
// blocks while playback is paused or in conversation, and returns false as
// soon as the step is superseded or its context ends.
func (e *Engine) checkpoint(ctx context.Context, gen uint64) bool {
	for {
		e.mu.Lock()
		if gen != e.gen || ctx.Err() != nil {
			e.mu.Unlock()
			return false
		}
		if e.state == domain.StatePlaying {
			e.mu.Unlock()
			return true
		}
		wake := e.wake
		e.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return false
		}
	}
}

// waitFor polls the surface until the selector matches or the timeout expires.
func (e *Engine) waitFor(ctx context.Context, w domain.WaitFor) error {
	timeout := w.Within(e.waitTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		if _, err := e.Surface.Find(ctx, w.Selector); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", domain.ErrWaitTimeout, w.Selector, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// locate runs the element-location protocol for a step and returns the
// selector to highlight, or "" when nothing resolved.
func (e *Engine) locate(ctx context.Context, gen uint64, tour *domain.TourDefinition, ps domain.PlacedStep, index int) string {
	hint := ps.Selector
	var (
		loc    domain.ElementLocation
		direct bool
	)

	description := ps.Element
	if description == "" {
		description = ps.Title
	}

	switch {
	case e.Vision == nil || description == "":
		loc = vision.Direct(hint)
		direct = true
	case e.Capturer == nil:
		loc = vision.Fallback(hint, fmt.Errorf("no capturer configured"))
	default:
		img, err := e.Capturer.CaptureViewport(ctx)
		if err != nil {
			e.logger.Warn("capture for vision failed", "step", ps.ID, "err", err)
			loc = vision.Fallback(hint, err)
			break
		}
		if !e.checkpoint(ctx, gen) {
			return ""
		}
		tc := domain.NewTourContext(tour, index)
		loc = e.Vision.Locate(ctx, domain.LocateRequest{
			Screenshot:   img.DataURI,
			Description:  description,
			SelectorHint: hint,
			Context:      tc.Scope(),
		})
	}

	selector, source := vision.Resolve(loc, hint, e.allowFallback)
	if direct {
		selector, source = vision.ResolveDirect(hint)
	}
	if e.logLocations {
		e.logger.Info("element located", "step", ps.ID, "source", source, "selector", selector,
			"found", loc.Found, "confidence", loc.Confidence)
	}
	if e.hooks.OnLocate != nil {
		e.hooks.OnLocate(ctx, &domain.LocateEvent{
			Timestamp: time.Now(),
			StepID:    ps.ID,
			Location:  loc,
			Resolved:  selector,
			Source:    source,
		})
	}
	if source == vision.SourceVision {
		e.track(domain.EventVisionSuccess, tour.ID, ps.ID, map[string]any{"confidence": loc.Confidence, "selector": selector})
	}
	return selector
}

// narrate plays the step narration to completion. Narration cut short by the
// conversation (stopped or preempted while the step stays current) is replayed
// from the start once playback resumes.
func (e *Engine) narrate(ctx context.Context, gen uint64, ps domain.PlacedStep) bool {
	if ps.Narration == "" {
		return e.checkpoint(ctx, gen)
	}
	for {
		err := e.Narrator.Speak(ctx, ps.Narration)
		if !e.checkpoint(ctx, gen) {
			return false
		}
		switch {
		case err == nil:
			return true
		case errors.Is(err, domain.ErrPreempted), errors.Is(err, domain.ErrStopped):
			e.logger.Debug("narration interrupted, replaying", "step", ps.ID)
		default:
			e.logger.Warn("narration failed", "step", ps.ID, "err", err)
			return true
		}
	}
}

// perform runs the post-narration action of a step.
func (e *Engine) perform(ctx context.Context, a domain.Action, selector string) error {
	run, err := domain.Dispatch(a, selector, domain.ActionHandler[func() error]{
		Click: func(sel string) func() error {
			return func() error {
				if sel == "" {
					return fmt.Errorf("click: %w", domain.ErrElementNotFound)
				}
				return e.Surface.Click(ctx, sel)
			}
		},
		Scroll: func(sel string) func() error {
			return func() error {
				if sel == "" {
					return fmt.Errorf("scroll: %w", domain.ErrElementNotFound)
				}
				return e.Surface.ScrollIntoView(ctx, sel)
			}
		},
		Wait: func(d time.Duration) func() error {
			return func() error {
				t := time.NewTimer(d)
				defer t.Stop()
				select {
				case <-t.C:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	})
	if err != nil {
		return err
	}
	return run()
}

// scheduleAdvance arms the auto-advance for the step started under gen. While
// paused the delay is owed instead and armed again on resume.
func (e *Engine) scheduleAdvance(gen uint64, delay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		return
	}
	e.awaiting = true
	e.pending = delay
	if e.state == domain.StatePlaying {
		e.armAdvanceLocked()
	}
}

func (e *Engine) armAdvanceLocked() {
	e.stopAdvanceLocked()
	gen := e.gen
	e.advance = time.AfterFunc(e.pending, func() { e.advanceFrom(gen) })
}

func (e *Engine) advanceFrom(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.state != domain.StatePlaying || e.destroyed {
		e.mu.Unlock()
		return
	}
	left := e.leaveLocked()
	e.launchLocked(e.index + 1)
	e.mu.Unlock()

	e.fireLeave(e.base, left)
}

// complete ends a tour that ran past its last step.
func (e *Engine) complete(ctx context.Context, gen uint64, tour *domain.TourDefinition) {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.haltLocked()
	e.index = tour.TotalSteps()
	e.tc = domain.NewTourContext(tour, e.index)
	ev := e.setStateLocked(domain.StateIdle)
	e.mu.Unlock()

	e.teardown(ctx)
	e.fireState(ctx, ev)
	e.track(domain.EventComplete, tour.ID, "", map[string]any{"totalSteps": tour.TotalSteps()})
	e.logger.Info("tour completed", "tour", tour.ID)
}

// teardown removes the tour layers and the conversation.
func (e *Engine) teardown(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if e.Conversation != nil {
		if err := e.Conversation.Dismiss(ctx); err != nil {
			e.logger.Debug("dismiss conversation failed", "err", err)
		}
	}
	if err := e.Spotlight.Hide(ctx); err != nil {
		e.logger.Debug("hide spotlight failed", "err", err)
	}
}
