package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	narratehttp "github.com/aretw0/narrate/pkg/adapters/http"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeOptions configures the control API server.
type ServeOptions struct {
	ConfigPath string
	Addr       string
	// Surface is "bridge" (the host page loads /narrate.js) or "chrome".
	Surface SurfaceKind
	Debug   bool
}

// Serve exposes the widget over HTTP until the process is interrupted.
func Serve(opts ServeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := NewLogger(cfg.Log, opts.Debug, false)
	if opts.Surface == "" {
		opts.Surface = SurfaceBridge
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	streams := narratehttp.NewStreamManager(logger)
	app, err := Build(sigCtx, cfg, BuildOptions{
		Surface: opts.Surface,
		Logger:  logger,
		Hooks:   []domain.LifecycleHooks{streams.Hooks()},
	})
	if err != nil {
		return fmt.Errorf("error initializing widget: %w", err)
	}

	handlerOpts := []narratehttp.Option{
		narratehttp.WithLogger(logger),
		narratehttp.WithStreams(streams),
	}
	if app.Bridge != nil {
		handlerOpts = append(handlerOpts, narratehttp.WithBridge(app.Bridge))
	}
	if app.Registry != nil {
		handlerOpts = append(handlerOpts, narratehttp.WithMetricsHandler(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
	}

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           narratehttp.NewHandler(app.Widget, handlerOpts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting narrate server", "addr", srv.Addr, "surface", opts.Surface)
		serverErrors <- srv.ListenAndServe()
	}()

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-sigCtx.Done():
		logger.Info("shutting down", "signal", sigCtx.Signal())
	}

	// Give outstanding requests a deadline for completion.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown did not complete", "err", err)
		_ = srv.Close()
	}
	if err := app.Close(ctx); err != nil {
		logger.Warn("widget shutdown", "err", err)
	}
	logger.Info("narrate server stopped")
	return runErr
}
