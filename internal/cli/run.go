package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/narrate"
	"github.com/aretw0/narrate/internal/presentation/tui"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/domain"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	ConfigPath string
	TourID     string
	DryRun     bool
	Watch      bool
	Headless   bool
	Debug      bool
}

// Execute plays one tour, reading commands from stdin until the tour ends or
// the process is interrupted.
func Execute(opts RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	// The tour is started explicitly below.
	cfg.AutoStart = false
	if opts.TourID == "" {
		opts.TourID = cfg.StartTour
	}

	logger := NewLogger(cfg.Log, opts.Debug, !opts.Debug)
	if !opts.Headless {
		tui.PrintBanner(os.Stdout, narrate.Version)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	r := narrate.NewRunner()
	r.Input = os.Stdin
	r.Output = os.Stdout
	r.Headless = opts.Headless
	if !opts.Headless {
		r.Renderer = tui.NewRenderer(os.Stdout)
	}

	surface := SurfaceChrome
	if opts.DryRun {
		surface = SurfaceMemory
	}
	app, err := Build(sigCtx, cfg, BuildOptions{
		Surface: surface,
		Logger:  logger,
		Hooks:   []domain.LifecycleHooks{r.Hooks()},
	})
	if err != nil {
		return fmt.Errorf("error initializing widget: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			logger.Warn("shutdown", "err", err)
		}
	}()

	if opts.Watch {
		go watchTours(sigCtx, app, opts.TourID)
	}

	err = r.Run(sigCtx, app.Widget, opts.TourID)
	if !opts.Headless {
		step := ""
		if s := app.Widget.Context().CurrentStep; s != nil {
			step = s.ID
		}
		if err == nil && sigCtx.Err() != nil {
			err = context.Canceled
		}
		logCompletion(step, err, sigCtx.Signal())
	}
	if isInterrupted(err) {
		return nil
	}
	return err
}

// watchTours restarts the tour when its source changes, so edits show up
// without relaunching the browser.
func watchTours(ctx context.Context, app *App, tourID string) {
	ch, err := app.Widget.Watch(ctx)
	if err != nil {
		app.Logger.Warn("watch unavailable", "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			// Let editors finish writing.
			time.Sleep(100 * time.Millisecond)
			printSystemMessage("Change detected, restarting tour.")
			// Starting again replaces the running tour with the reloaded definition.
			if err := app.Widget.StartStrict(ctx, tourID); err != nil {
				app.Logger.Error("reload failed", "err", err)
			}
		}
	}
}
