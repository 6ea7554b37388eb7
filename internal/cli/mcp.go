package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	narratehttp "github.com/aretw0/narrate/pkg/adapters/http"
	"github.com/aretw0/narrate/pkg/adapters/mcp"
	"github.com/aretw0/narrate/pkg/config"
)

// MCPOptions configures the MCP server.
type MCPOptions struct {
	ConfigPath string
	// Transport is "stdio" or "sse".
	Transport string
	Addr      string
	BaseURL   string
	Surface   SurfaceKind
	// BridgeAddr serves the page script when Surface is the bridge.
	BridgeAddr string
	Debug      bool
}

// ServeMCP exposes the widget as MCP tools until the client disconnects or the
// process is interrupted. Logs go to stderr so stdio framing stays intact.
func ServeMCP(opts MCPOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfg.AutoStart = false
	logger := NewLogger(cfg.Log, opts.Debug, false)
	if opts.Surface == "" {
		opts.Surface = SurfaceChrome
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	app, err := Build(sigCtx, cfg, BuildOptions{Surface: opts.Surface, Logger: logger})
	if err != nil {
		return fmt.Errorf("error initializing widget: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			logger.Warn("widget shutdown", "err", err)
		}
	}()

	if app.Bridge != nil {
		bridgeSrv := &http.Server{
			Addr:              opts.BridgeAddr,
			Handler:           narratehttp.NewHandler(app.Widget, narratehttp.WithLogger(logger), narratehttp.WithBridge(app.Bridge)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("page bridge listening", "addr", bridgeSrv.Addr)
			if err := bridgeSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("page bridge", "err", err)
			}
		}()
		defer bridgeSrv.Close()
	}

	srv := mcp.NewServer(app.Widget, mcp.WithLogger(logger))
	switch opts.Transport {
	case "", "stdio":
		logger.Info("starting narrate MCP server (stdio)")
		return srv.ServeStdio()
	case "sse":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost" + opts.Addr
		}
		logger.Info("starting narrate MCP server (SSE)", "addr", opts.Addr)
		err := srv.ServeSSE(sigCtx, opts.Addr, baseURL)
		logger.Info("MCP server stopped")
		return err
	default:
		return fmt.Errorf("unknown transport %q (supported: stdio, sse)", opts.Transport)
	}
}
