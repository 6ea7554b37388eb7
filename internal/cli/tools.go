package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/narrate/internal/presentation/graph"
	"github.com/aretw0/narrate/internal/validator"
	"github.com/aretw0/narrate/pkg/adapters/file"
	"github.com/aretw0/narrate/pkg/adapters/loam"
	"github.com/aretw0/narrate/pkg/adapters/redis"
	"github.com/aretw0/narrate/pkg/collector"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/aretw0/narrate/pkg/speech"
)

// LoadTours reads every tour of the configured source and validates it.
func LoadTours(ctx context.Context, src config.Tours) ([]domain.TourDefinition, error) {
	var loader ports.TourLoader
	switch src.Source {
	case "loam":
		l, err := loam.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("open tour repository: %w", err)
		}
		loader = l
	default:
		l, err := file.NewLoader(src.Path)
		if err != nil {
			return nil, err
		}
		loader = l
	}
	tours, err := loader.Tours(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateTours(tours); err != nil {
		return nil, err
	}
	return tours, nil
}

// Validate checks the tours of the configured source, or of path when set,
// and reports one line per tour to out.
func Validate(ctx context.Context, configPath, path string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if path != "" {
		cfg.Tours.Path = path
		if info, err := os.Stat(path); err == nil && info.IsDir() && hasMarkdown(path) {
			cfg.Tours.Source = "loam"
		}
	}
	tours, err := LoadTours(ctx, cfg.Tours)
	if err != nil {
		return err
	}
	if len(tours) == 0 {
		return fmt.Errorf("no tours found in %s", cfg.Tours.Path)
	}
	for _, t := range tours {
		fmt.Fprintf(out, "  %-24s %d steps\n", t.ID, t.TotalSteps())
	}
	return nil
}

func hasMarkdown(dir string) bool {
	matches, _ := filepath.Glob(filepath.Join(dir, "*.md"))
	return len(matches) > 0
}

// Warm pre-synthesizes the narration of every tour into the configured cache.
// With a redis cache, concurrent warmers coordinate through a redis lock.
func Warm(ctx context.Context, configPath string, concurrency int, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Endpoint == "" {
		return errors.New("endpoint is required to synthesize narration")
	}
	logger := NewLogger(cfg.Log, false, false)

	tours, err := LoadTours(ctx, cfg.Tours)
	if err != nil {
		return err
	}

	var (
		cache ports.AudioCache
		opts  = []speech.WarmOption{speech.WithConcurrency(concurrency), speech.WithWarmLogger(logger)}
	)
	switch cfg.Cache.Backend {
	case "redis":
		rc := redis.New(cfg.Cache.RedisAddr, "", 0, redis.WithTTL(cfg.Cache.TTL))
		defer rc.Close()
		cache = rc
		opts = append(opts, speech.WithLocker(redis.NewLocker(rc.Client(), "narrate:warm"), time.Minute))
	default:
		return fmt.Errorf("cache.backend %q is process local; warming needs redis", cfg.Cache.Backend)
	}

	remote := speech.NewHTTPRemote(cfg.Endpoint, cfg.APIKey, &http.Client{Timeout: cfg.Timing.HTTPTimeout})
	voice := speech.Voice{ID: cfg.Speech.Voice, Speed: cfg.Speech.Speed, Language: cfg.Language}
	stats, err := speech.NewWarmer(remote, cache, opts...).Warm(ctx, voice, tours...)
	fmt.Fprintf(out, "synthesized %d, already cached %d, failed %d\n", stats.Synthesized, stats.Cached, stats.Failed)
	return err
}

// Collect runs the analytics collector until the process is interrupted.
func Collect(configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Collector.Addr = addr
	}
	logger := NewLogger(cfg.Log, false, false)

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	store, err := collector.Open(sigCtx, cfg.Collector.Driver, cfg.Collector.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              cfg.Collector.Addr,
		Handler:           collector.NewHandler(store, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("collector listening", "addr", srv.Addr, "driver", cfg.Collector.Driver)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("collector: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

const sampleTour = `id: welcome
name: Welcome
pages:
  - id: home
    steps:
      - id: intro
        title: Welcome
        narration: Welcome! Let me show you around.
      - id: logo
        title: Home
        selector: "#logo"
        element: the company logo in the header
        narration: Click the logo any time to come back here.
        duration: 2s
`

// Init writes a default configuration and a sample tour into dir. Existing
// files are left untouched.
func Init(dir string, out io.Writer) error {
	toursDir := filepath.Join(dir, "tours")
	if err := os.MkdirAll(toursDir, 0o755); err != nil {
		return err
	}
	cfgPath := filepath.Join(dir, "narrate.yaml")
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		cfg := config.Default()
		cfg.Tours.Path = "tours"
		if err := config.Write(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s\n", cfgPath)
	}
	tourPath := filepath.Join(toursDir, "welcome.yaml")
	if _, err := os.Stat(tourPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(tourPath, []byte(sampleTour), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "created %s\n", tourPath)
	}
	return nil
}

// Graph writes a Mermaid flowchart of the tour. When at is a valid step index
// the steps before it are marked visited and the step itself current.
func Graph(ctx context.Context, configPath, tourID string, at int, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	tours, err := LoadTours(ctx, cfg.Tours)
	if err != nil {
		return err
	}
	if tourID == "" {
		tourID = cfg.StartTour
	}
	for _, t := range tours {
		if tourID != "" && t.ID != tourID {
			continue
		}
		var overlay *graph.Overlay
		if steps := t.Steps(); at >= 0 && at < len(steps) {
			overlay = &graph.Overlay{CurrentStep: steps[at].ID}
			for _, s := range steps[:at] {
				overlay.VisitedSteps = append(overlay.VisitedSteps, s.ID)
			}
		}
		_, err := io.WriteString(out, graph.GenerateMermaid(t, overlay))
		return err
	}
	if tourID == "" {
		return errors.New("no tours found")
	}
	return fmt.Errorf("%w: %s", domain.ErrTourNotFound, tourID)
}
