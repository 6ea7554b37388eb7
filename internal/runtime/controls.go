package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Pause holds the current step. Narration is paused in place and a pending
// auto-advance is withheld until Resume.
func (e *Engine) Pause(ctx context.Context) {
	e.mu.Lock()
	if e.state != domain.StatePlaying {
		e.mu.Unlock()
		return
	}
	e.stopAdvanceLocked()
	ev := e.setStateLocked(domain.StatePaused)
	e.mu.Unlock()

	e.Narrator.Pause()
	e.fireState(ctx, ev)
}

// Resume continues the current step from where it was paused.
func (e *Engine) Resume(ctx context.Context) {
	e.mu.Lock()
	if e.state != domain.StatePaused {
		e.mu.Unlock()
		return
	}
	ev := e.setStateLocked(domain.StatePlaying)
	if e.awaiting {
		e.armAdvanceLocked()
	}
	e.mu.Unlock()

	e.Narrator.Resume()
	e.fireState(ctx, ev)
}

// TogglePause pauses a playing tour and resumes a paused one.
func (e *Engine) TogglePause(ctx context.Context) {
	switch e.State() {
	case domain.StatePlaying:
		e.Pause(ctx)
	case domain.StatePaused:
		e.Resume(ctx)
	}
}

// Next moves to the following step. Past the last step the tour completes.
func (e *Engine) Next(ctx context.Context) {
	e.navigate(ctx, func(index, _ int) (int, bool) { return index + 1, true })
}

// Previous moves to the preceding step. It does nothing at the first step.
func (e *Engine) Previous(ctx context.Context) {
	e.navigate(ctx, func(index, _ int) (int, bool) { return index - 1, index > 0 })
}

// GoTo jumps to the step at index.
func (e *Engine) GoTo(ctx context.Context, index int) error {
	var err error
	e.navigate(ctx, func(_, total int) (int, bool) {
		if index < 0 || index >= total {
			err = fmt.Errorf("step index %d out of range [0,%d)", index, total)
			return 0, false
		}
		return index, true
	})
	return err
}

// navigate makes the step chosen by pick current and plays it. Navigating a
// paused tour resumes it; navigating during a conversation is ignored.
func (e *Engine) navigate(ctx context.Context, pick func(index, total int) (int, bool)) {
	e.mu.Lock()
	if e.tour == nil || (e.state != domain.StatePlaying && e.state != domain.StatePaused) {
		e.mu.Unlock()
		return
	}
	target, ok := pick(e.index, e.tour.TotalSteps())
	if !ok {
		e.mu.Unlock()
		return
	}
	e.haltLocked()
	gen := e.gen
	left := e.leaveLocked()
	ev := e.setStateLocked(domain.StatePlaying)
	e.mu.Unlock()

	// Stop before the next step can start narrating
	e.Narrator.Stop()
	e.fireLeave(ctx, left)
	e.fireState(ctx, ev)

	e.mu.Lock()
	defer e.mu.Unlock()
	// A pause or conversation opened meanwhile parks the step at its first
	// checkpoint; only a newer halt or navigation supersedes it.
	if gen != e.gen || e.state == domain.StateIdle || e.destroyed {
		return
	}
	e.launchLocked(target)
}

// Restart replays the current tour from step 0 in the same session.
func (e *Engine) Restart(ctx context.Context) error {
	tour := e.Tour()
	if tour == nil {
		return e.Start(ctx, "")
	}
	return e.begin(ctx, tour)
}

// Stop ends the tour after the exit confirmation, when one is configured.
// A declined confirmation leaves the tour untouched and is not an error.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	idle := e.state == domain.StateIdle
	e.mu.Unlock()
	if idle {
		return nil
	}

	if e.confirmExit != "" && e.Confirmer != nil {
		ok, err := e.Confirmer.Confirm(ctx, e.confirmExit)
		if err != nil {
			return fmt.Errorf("confirm exit: %w", err)
		}
		if !ok {
			e.logger.Debug("exit declined")
			return nil
		}
	}
	e.halt(ctx)
	return nil
}

// halt stops the tour unconditionally and records the exit.
func (e *Engine) halt(ctx context.Context) {
	e.mu.Lock()
	if e.state == domain.StateIdle {
		e.mu.Unlock()
		return
	}
	e.haltLocked()
	left := e.leaveLocked()
	tour := e.tour
	index := e.index
	ev := e.setStateLocked(domain.StateIdle)
	e.mu.Unlock()

	e.Narrator.Stop()
	e.teardown(ctx)
	e.fireLeave(ctx, left)
	e.fireState(ctx, ev)

	var tourID, stepID string
	if tour != nil {
		tourID = tour.ID
		if steps := tour.Steps(); index < len(steps) {
			stepID = steps[index].ID
		}
	}
	e.track(domain.EventExit, tourID, stepID, map[string]any{"index": index})
	e.logger.Info("tour stopped", "tour", tourID, "index", index)
}

// OpenConversation opens the question modal on the current step. A playing or
// paused tour parks in the conversation state until the modal is closed.
func (e *Engine) OpenConversation(ctx context.Context) error {
	if e.Conversation == nil {
		return fmt.Errorf("conversation: %w", domain.ErrUnsupported)
	}

	e.mu.Lock()
	var ev *domain.StateEvent
	parked := e.state == domain.StatePlaying || e.state == domain.StatePaused
	if parked {
		e.resumeTo = e.state
		e.stopAdvanceLocked()
		ev = e.setStateLocked(domain.StateConversation)
	}
	tc := e.tc
	e.mu.Unlock()

	if parked {
		// Narration cut here is replayed when the tour continues
		e.Narrator.Stop()
		e.fireState(ctx, ev)
	}
	return e.Conversation.Open(ctx, tc)
}

// CloseConversation closes the modal; the tour continues in the state it was in.
func (e *Engine) CloseConversation(ctx context.Context) error {
	if e.Conversation == nil {
		return nil
	}
	return e.Conversation.Close(ctx)
}

// Ask submits a typed question to the open conversation.
func (e *Engine) Ask(ctx context.Context, question string) error {
	if e.Conversation == nil {
		return fmt.Errorf("conversation: %w", domain.ErrUnsupported)
	}
	return e.Conversation.Ask(ctx, question)
}

// Listen starts a voice question in the open conversation.
func (e *Engine) Listen(ctx context.Context) error {
	if e.Conversation == nil {
		return fmt.Errorf("conversation: %w", domain.ErrUnsupported)
	}
	sub, err := e.Conversation.Listen(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	prev := e.listening
	e.listening = sub
	e.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	return nil
}

// continueTour is the conversation's close callback.
func (e *Engine) continueTour() {
	e.mu.Lock()
	if e.state != domain.StateConversation {
		e.mu.Unlock()
		return
	}
	to := e.resumeTo
	if to == "" {
		to = domain.StatePlaying
	}
	ev := e.setStateLocked(to)
	if to == domain.StatePlaying && e.awaiting {
		e.armAdvanceLocked()
	}
	listening := e.listening
	e.listening = nil
	e.mu.Unlock()

	if listening != nil {
		listening.Cancel()
	}
	if to == domain.StatePaused {
		e.Narrator.Pause()
	}
	e.fireState(e.base, ev)
}

// Destroy stops everything, detaches from the surface and waits for running
// steps to unwind. The engine cannot be used afterwards.
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.halt(ctx)

	e.mu.Lock()
	e.destroyed = true
	e.haltLocked()
	events := e.events
	e.events = nil
	listening := e.listening
	e.listening = nil
	e.mu.Unlock()

	for _, sub := range []ports.Subscription{events, listening} {
		if sub != nil {
			sub.Cancel()
		}
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
