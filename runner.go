package narrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/lifecycle"
	"github.com/aretw0/narrate/pkg/domain"
)

// Runner drives a Widget from a line-oriented terminal: it prints each step as
// it starts and turns typed lines into tour commands.
// This allows for easy testing and integration with different frontends (CLI, TUI, etc).
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer

	steps  chan int
	states chan domain.PlaybackState
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// errQuit ends the input loop after a manual shutdown.
var errQuit = errors.New("quit")

// inputMappings owns the runner's command space. Lines starting with '?' are
// questions; anything else is an unknown command.
var inputMappings = map[string]lifecycle.Event{
	"":         lifecycle.InputEvent{Command: "next"},
	"n":        lifecycle.InputEvent{Command: "next"},
	"next":     lifecycle.InputEvent{Command: "next"},
	"p":        lifecycle.InputEvent{Command: "previous"},
	"prev":     lifecycle.InputEvent{Command: "previous"},
	"previous": lifecycle.InputEvent{Command: "previous"},
	"t":        lifecycle.InputEvent{Command: "toggle"},
	"toggle":   lifecycle.InputEvent{Command: "toggle"},
	"space":    lifecycle.InputEvent{Command: "toggle"},
	"pause":    lifecycle.InputEvent{Command: "pause"},
	"resume":   lifecycle.InputEvent{Command: "resume"},
	"r":        lifecycle.InputEvent{Command: "restart"},
	"restart":  lifecycle.InputEvent{Command: "restart"},
	"c":        lifecycle.InputEvent{Command: "close"},
	"close":    lifecycle.InputEvent{Command: "close"},
	"q":        lifecycle.ShutdownEvent{Reason: "manual"},
	"quit":     lifecycle.ShutdownEvent{Reason: "manual"},
	"exit":     lifecycle.ShutdownEvent{Reason: "manual"},
}

// NewRunner creates a Runner. Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{
		steps:  make(chan int, 16),
		states: make(chan domain.PlaybackState, 16),
	}
}

// Hooks returns the lifecycle hooks the Runner listens on. Pass them to New
// with WithLifecycleHooks.
func (r *Runner) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			select {
			case r.steps <- ev.Index:
			default:
			}
		},
		OnStateChange: func(_ context.Context, ev *domain.StateEvent) {
			select {
			case r.states <- ev.To:
			default:
			}
		},
	}
}

// Run starts tourID on w and processes input until the tour ends, the user
// quits or ctx is cancelled. Cancelling ctx stops the tour.
func (r *Runner) Run(ctx context.Context, w *Widget, tourID string) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}

	if !r.Headless {
		fmt.Fprintln(r.Output, "--- narrate (n)ext (p)rev (t)oggle (r)estart (q)uit, ?question ---")
	}
	if err := w.StartStrict(ctx, tourID); err != nil {
		return err
	}

	events, readErr := r.pump(ctx)
	handle := r.handler(w)

	for {
		select {
		case <-ctx.Done():
			// ctx is already done; the stop needs one of its own.
			return handle(context.Background(), lifecycle.ShutdownEvent{Reason: "interrupt"})

		case idx := <-r.steps:
			r.printStep(w.Context(), idx)

		case st := <-r.states:
			if st == domain.StateIdle {
				if !r.Headless {
					fmt.Fprintln(r.Output, "Tour finished.")
				}
				return nil
			}

		case err := <-readErr:
			// Graceful exit on EOF: the tour keeps playing until it ends.
			readErr = nil
			if err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			events = nil

		case ev := <-events:
			err := handle(ctx, ev)
			switch {
			case errors.Is(err, errQuit):
				fmt.Fprintln(r.Output, "Bye!")
				return nil
			case err != nil:
				fmt.Fprintf(r.Output, "error: %v\n", err)
			}
		}
	}
}

// pump reads lines from the input, upgraded to the process terminal when it
// is one, and turns them into events.
func (r *Runner) pump(ctx context.Context) (<-chan lifecycle.Event, <-chan error) {
	src := r.Input
	if in, err := lifecycle.UpgradeTerminal(src); err == nil && in != nil {
		src = in
	}

	events := make(chan lifecycle.Event)
	readErr := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		sc := bufio.NewScanner(src)
		for sc.Scan() {
			select {
			case events <- ParseLine(sc.Text()):
			case <-ctx.Done():
				return nil
			}
		}
		readErr <- sc.Err()
		return nil
	})
	return events, readErr
}

// ParseLine maps one typed line to the event it stands for.
func ParseLine(line string) lifecycle.Event {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "?") {
		return lifecycle.LineEvent{Line: line}
	}
	if ev, ok := inputMappings[strings.ToLower(line)]; ok {
		return ev
	}
	return lifecycle.UnknownCommandEvent{Command: line}
}

func (r *Runner) handler(w *Widget) lifecycle.HandlerFunc {
	return func(ctx context.Context, e lifecycle.Event) error {
		switch ev := e.(type) {
		case lifecycle.InputEvent:
			if ev.Command == "close" {
				return w.CloseConversation(ctx)
			}
			return w.Run(ctx, ev.Command)
		case lifecycle.LineEvent:
			q, _ := strings.CutPrefix(ev.Line, "?")
			return r.ask(ctx, w, q)
		case lifecycle.ShutdownEvent:
			if err := w.Stop(ctx); err != nil {
				return err
			}
			if ev.Reason == "manual" && w.State() == domain.StateIdle {
				return errQuit
			}
			return nil
		case lifecycle.UnknownCommandEvent:
			return fmt.Errorf("unknown command %q: %w", ev.Command, lifecycle.ErrNotHandled)
		}
		return lifecycle.ErrNotHandled
	}
}

func (r *Runner) ask(ctx context.Context, w *Widget, question string) error {
	if w.State() != domain.StateConversation {
		if err := w.OpenConversation(ctx); err != nil {
			return err
		}
	}
	if err := w.Ask(ctx, question); err != nil {
		return err
	}
	msgs := w.Transcript()
	if len(msgs) == 0 {
		return errors.New("no answer")
	}
	last := msgs[len(msgs)-1]
	r.print(fmt.Sprintf("**%s:** %s", last.Role, last.Text))
	if !r.Headless {
		fmt.Fprintln(r.Output, "(c)lose to continue the tour")
	}
	return nil
}

func (r *Runner) printStep(tc domain.TourContext, idx int) {
	if tc.CurrentStep == nil || tc.StepIndex != idx {
		return
	}
	s := tc.CurrentStep
	var b strings.Builder
	title := s.Title
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(&b, "### %s (%d/%d)\n\n", title, idx+1, tc.TotalSteps)
	if s.Narration != "" {
		b.WriteString(s.Narration)
	} else if s.Description != "" {
		b.WriteString(s.Description)
	}
	r.print(b.String())
}

func (r *Runner) print(md string) {
	out := md
	if r.Renderer != nil {
		if rendered, err := r.Renderer(md); err == nil {
			out = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(out))
}
