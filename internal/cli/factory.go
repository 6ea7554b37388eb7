package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/narrate"
	"github.com/aretw0/narrate/pkg/adapters/chrome"
	"github.com/aretw0/narrate/pkg/adapters/deepgram"
	"github.com/aretw0/narrate/pkg/adapters/elastic"
	narratehttp "github.com/aretw0/narrate/pkg/adapters/http"
	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/adapters/pinecone"
	"github.com/aretw0/narrate/pkg/adapters/process"
	"github.com/aretw0/narrate/pkg/adapters/redis"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/observability"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// SurfaceKind selects where tours are drawn.
type SurfaceKind string

const (
	// SurfaceChrome drives a local or remote Chrome tab.
	SurfaceChrome SurfaceKind = "chrome"
	// SurfaceBridge waits for the host page to load /narrate.js.
	SurfaceBridge SurfaceKind = "bridge"
	// SurfaceMemory is an in-process page for dry runs.
	SurfaceMemory SurfaceKind = "memory"
)

// BuildOptions tunes Build beyond the configuration.
type BuildOptions struct {
	Surface SurfaceKind
	Hooks   []domain.LifecycleHooks
	Logger  *slog.Logger
	// DryRunPlayback is how long each narration lasts on the memory surface.
	DryRunPlayback time.Duration
}

// App is a widget with every adapter the configuration asks for.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Widget   *narrate.Widget
	Surface  ports.Surface
	Bridge   *narratehttp.Bridge
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Cache    ports.AudioCache

	closers []func() error
}

// Build assembles the widget described by cfg.
func Build(ctx context.Context, cfg config.Config, opts BuildOptions) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = NewLogger(cfg.Log, false, false)
	}
	app := &App{Config: cfg, Logger: opts.Logger}
	ok := false
	defer func() {
		if !ok {
			app.closeAll()
		}
	}()

	widgetOpts := []narrate.Option{narrate.WithLogger(app.Logger)}

	if err := app.buildSurface(ctx, opts, &widgetOpts); err != nil {
		return nil, err
	}

	cache, err := app.buildCache()
	if err != nil {
		return nil, err
	}
	if cache != nil {
		app.Cache = cache
		widgetOpts = append(widgetOpts, narrate.WithAudioCache(cache))
	}

	if cfg.Analytics.Metrics {
		app.Registry = prometheus.NewRegistry()
		m, err := observability.NewMetrics(app.Registry)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		app.Metrics = m
		widgetOpts = append(widgetOpts, narrate.WithMetrics(m))
	}

	sinks, err := app.buildSinks()
	if err != nil {
		return nil, err
	}
	for _, s := range sinks {
		widgetOpts = append(widgetOpts, narrate.WithAnalyticsSink(s))
	}

	if cfg.Recognition.Provider == "deepgram" {
		engine, err := app.buildRecognition()
		if err != nil {
			return nil, err
		}
		widgetOpts = append(widgetOpts, narrate.WithSpeechEngine(engine))
	}

	if cfg.Knowledge.Provider == "pinecone" {
		kb, err := app.buildKnowledge()
		if err != nil {
			return nil, err
		}
		widgetOpts = append(widgetOpts, narrate.WithKnowledgeBase(kb))
	}

	if len(opts.Hooks) > 0 {
		widgetOpts = append(widgetOpts, narrate.WithLifecycleHooks(observability.Chain(opts.Hooks...)))
	}

	w, err := narrate.New(cfg, app.Surface, widgetOpts...)
	if err != nil {
		return nil, err
	}
	app.Widget = w

	if mem, isMem := app.Surface.(*memory.Surface); isMem {
		if err := stagePage(ctx, w, mem); err != nil {
			app.Logger.Warn("dry run: could not stage page", "err", err)
		}
	}

	ok = true
	return app, nil
}

func (a *App) buildSurface(ctx context.Context, opts BuildOptions, widgetOpts *[]narrate.Option) error {
	switch opts.Surface {
	case SurfaceMemory:
		d := opts.DryRunPlayback
		if d <= 0 {
			d = 300 * time.Millisecond
		}
		a.Surface = memory.NewSurface()
		*widgetOpts = append(*widgetOpts, narrate.WithAudioPlayer(memory.NewPlayer(d)))

	case SurfaceBridge:
		b := narratehttp.NewBridge(
			narratehttp.WithBridgeLogger(a.Logger),
			narratehttp.WithCallTimeout(a.Config.Timing.WaitTimeout),
		)
		a.Bridge = b
		a.Surface = b
		a.closers = append(a.closers, b.Close)

	case SurfaceChrome, "":
		bc := a.Config.Browser
		if bc.URL == "" && bc.Control == "" {
			return errors.New("browser.url is required to drive chrome")
		}
		browser, err := chrome.Launch(ctx, chrome.Config{
			URL:        bc.URL,
			Bin:        bc.Bin,
			ControlURL: bc.Control,
			Headless:   bc.Headless,
			Stealth:    bc.Stealth,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, browser.Close)
		s, err := chrome.NewSurface(browser.Page, chrome.WithLogger(a.Logger))
		if err != nil {
			return err
		}
		a.Surface = s
		// Closed before the browser.
		a.closers = append(a.closers, s.Close)

	default:
		return fmt.Errorf("unknown surface %q", opts.Surface)
	}
	return nil
}

func (a *App) buildCache() (ports.AudioCache, error) {
	c := a.Config.Cache
	switch c.Backend {
	case "redis":
		rc := redis.New(c.RedisAddr, "", 0, redis.WithTTL(c.TTL))
		a.closers = append(a.closers, rc.Close)
		return rc, nil
	case "memory":
		return memory.NewAudioCache(), nil
	default:
		// "none" is handled by the widget.
		return nil, nil
	}
}

func (a *App) buildSinks() ([]ports.AnalyticsSink, error) {
	c := a.Config.Analytics
	if !c.Enabled {
		return nil, nil
	}
	var sinks []ports.AnalyticsSink
	if c.RedisAddr != "" {
		rc := redis.New(c.RedisAddr, "", 0)
		a.closers = append(a.closers, rc.Close)
		sinks = append(sinks, redis.NewStreamSink(rc.Client(), c.Stream, 100000))
	}
	if len(c.Elastic) > 0 {
		es, err := elastic.NewSink(c.Elastic, c.Index)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, es)
	}
	return sinks, nil
}

func (a *App) buildRecognition() (ports.SpeechEngine, error) {
	rc := a.Config.Recognition
	rec, err := process.Resolve(rc.Recorder, rc.Command)
	if err != nil {
		return nil, fmt.Errorf("recognition: %w", err)
	}
	src := process.NewSource(rec, process.WithLogger(a.Logger))
	engine, err := deepgram.New(rc.APIKey, src.Open,
		deepgram.WithModel(rc.Model),
		deepgram.WithLogger(a.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("recognition: %w", err)
	}
	return engine, nil
}

func (a *App) buildKnowledge() (ports.KnowledgeBase, error) {
	kc := a.Config.Knowledge
	idx, err := pinecone.Connect(kc.APIKey, kc.Host, kc.Namespace)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	a.closers = append(a.closers, idx.Close)
	embedder := pinecone.NewHTTPEmbedder(kc.EmbedURL, kc.EmbedModel, kc.EmbedAPIKey, a.Config.Timing.HTTPTimeout)
	return pinecone.New(idx, embedder, pinecone.WithTopK(kc.TopK), pinecone.WithLogger(a.Logger)), nil
}

// stagePage places every element the tours point at on the memory page, so a
// dry run walks each step without waiting for timeouts.
func stagePage(ctx context.Context, w *narrate.Widget, mem *memory.Surface) error {
	tours, err := w.Tours(ctx)
	if err != nil {
		return err
	}
	y := 40.0
	add := func(selector, text string) {
		if selector == "" {
			return
		}
		if _, err := mem.Find(ctx, selector); err == nil {
			return
		}
		mem.Add(selector, domain.ElementInfo{Text: text, Bounds: domain.Rect{X: 40, Y: y, Width: 240, Height: 40}})
		y += 60
		if y > 700 {
			y = 40
		}
	}
	for _, t := range tours {
		for _, p := range t.Pages {
			for _, s := range p.Steps {
				add(s.Selector, s.Title)
				if s.WaitFor != nil {
					add(s.WaitFor.Selector, "")
				}
				if s.Action != nil {
					add(s.Action.Selector, "")
				}
			}
		}
	}
	return nil
}

// Close destroys the widget and releases adapters in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Widget != nil {
		if err := a.Widget.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, a.closeAll())
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
