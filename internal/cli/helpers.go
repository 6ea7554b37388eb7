package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/config"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	start  sync.Once
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	sc.start.Do(func() {
		signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			select {
			case sig := <-sc.sigCh:
				sc.mu.Lock()
				sc.sigVal = sig
				sc.mu.Unlock()
				sc.Cancel()
			case <-sc.Context.Done():
				// Context cancelled elsewhere
			}
			sc.stop.Do(func() {
				signal.Stop(sc.sigCh)
			})
		}()
	})

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// NewLogger configures the application logger. Debug overrides the configured
// level; quiet discards everything below warnings.
func NewLogger(cfg config.Log, debug, quiet bool) *slog.Logger {
	format := logging.Format(cfg.Format)
	if debug {
		return logging.New(slog.LevelDebug, format)
	}
	lvl, err := cfg.SlogLevel()
	if err != nil {
		lvl = slog.LevelInfo
	}
	if quiet && lvl < slog.LevelWarn {
		lvl = slog.LevelWarn
	}
	return logging.New(lvl, format)
}

// printSystemMessage prints a standardized system message to stdout.
func printSystemMessage(format string, args ...any) {
	fmt.Printf(">>> %s\n", fmt.Sprintf(format, args...))
}

func isInterrupted(err error) bool {
	return err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, io.EOF))
}

func logCompletion(step string, err error, sig os.Signal) {
	if err == nil {
		printSystemMessage("Tour finished.")
		return
	}
	if !isInterrupted(err) {
		return
	}
	switch {
	case sig == os.Interrupt:
		fmt.Printf("[CTRL+C]\n")
		printSystemMessage("Interrupted at '%s' step.", step)
	case sig != nil:
		fmt.Printf("\n")
		printSystemMessage("Terminated at '%s' step.", step)
	default:
		printSystemMessage("Stopped at '%s' step.", step)
	}
}
