package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Command is an orchestrator operation that can be bound to a key.
type Command string

const (
	CmdNext     Command = "next"
	CmdPrevious Command = "previous"
	CmdToggle   Command = "toggle"
	CmdPause    Command = "pause"
	CmdResume   Command = "resume"
	CmdStop     Command = "stop"
	CmdRestart  Command = "restart"
	CmdAsk      Command = "ask"
)

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	switch c {
	case CmdNext, CmdPrevious, CmdToggle, CmdPause, CmdResume, CmdStop, CmdRestart, CmdAsk:
		return true
	}
	return false
}

// DefaultBindings maps keys (as reported by KeyboardEvent.key) to commands.
func DefaultBindings() map[string]Command {
	return map[string]Command{
		"ArrowRight": CmdNext,
		"ArrowLeft":  CmdPrevious,
		" ":          CmdToggle,
		"Escape":     CmdStop,
	}
}

// namedKeys restores the KeyboardEvent.key spelling of keys that configuration
// loaders lowercase.
var namedKeys = map[string]string{
	"space":      " ",
	"arrowright": "ArrowRight",
	"arrowleft":  "ArrowLeft",
	"arrowup":    "ArrowUp",
	"arrowdown":  "ArrowDown",
	"escape":     "Escape",
	"esc":        "Escape",
	"enter":      "Enter",
	"tab":        "Tab",
}

// ParseBindings converts a configured key map, rejecting unknown commands.
// Named keys match case-insensitively; "Space" binds the space bar.
func ParseBindings(raw map[string]string) (map[string]Command, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]Command, len(raw))
	for key, name := range raw {
		cmd := Command(strings.ToLower(strings.TrimSpace(name)))
		if !cmd.Valid() {
			return nil, fmt.Errorf("key %q: unknown command %q", key, name)
		}
		if named, ok := namedKeys[strings.ToLower(key)]; ok {
			key = named
		}
		out[key] = cmd
	}
	return out, nil
}

// HandleKey runs the command bound to key. It reports whether the key was
// consumed. Bindings are ignored while the keyboard is disabled, and during a
// conversation only Escape is honored, to close it.
func (e *Engine) HandleKey(ctx context.Context, key string) bool {
	if !e.keyboard {
		return false
	}

	switch e.State() {
	case domain.StateConversation:
		if key != "Escape" {
			return false
		}
		if err := e.CloseConversation(ctx); err != nil {
			e.logger.Warn("close conversation failed", "err", err)
		}
		return true
	case domain.StateIdle:
		return false
	}

	cmd, ok := e.bindings[key]
	if !ok {
		return false
	}
	if err := e.Run(ctx, cmd); err != nil {
		e.logger.Warn("key command failed", "key", key, "command", cmd, "err", err)
	}
	return true
}

// Run executes a command.
func (e *Engine) Run(ctx context.Context, cmd Command) error {
	switch cmd {
	case CmdNext:
		e.Next(ctx)
	case CmdPrevious:
		e.Previous(ctx)
	case CmdToggle:
		e.TogglePause(ctx)
	case CmdPause:
		e.Pause(ctx)
	case CmdResume:
		e.Resume(ctx)
	case CmdStop:
		return e.Stop(ctx)
	case CmdRestart:
		return e.Restart(ctx)
	case CmdAsk:
		return e.OpenConversation(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// Attach routes surface events to the engine: keys to HandleKey and the
// widget controls to the conversation. Destroy cancels the subscription.
func (e *Engine) Attach() ports.Subscription {
	sub := e.Surface.Subscribe(e.HandleEvent)

	e.mu.Lock()
	prev := e.events
	e.events = sub
	e.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
	return sub
}

// HandleEvent dispatches one surface event. Long-running work is started in
// the background so the surface's dispatch is never blocked by a question.
func (e *Engine) HandleEvent(ev domain.UIEvent) {
	ctx := e.base
	switch ev.Kind {
	case domain.UIKey:
		e.HandleKey(ctx, ev.Key)
	case domain.UIClick:
		e.handleControl(ctx, ev.Target)
	case domain.UISubmit:
		if ev.Target != domain.ControlAsk {
			return
		}
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.Ask(ctx, ev.Text); err != nil {
				e.logger.Debug("question ignored", "err", err)
			}
		}()
	}
}

func (e *Engine) handleControl(ctx context.Context, control string) {
	var err error
	switch control {
	case domain.ControlTrigger:
		err = e.OpenConversation(ctx)
	case domain.ControlClose:
		err = e.CloseConversation(ctx)
	case domain.ControlMicrophone:
		err = e.Listen(ctx)
	default:
		return
	}
	if err != nil {
		e.logger.Warn("control failed", "control", control, "err", err)
	}
}
