package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// WarmStats summarizes a Warm run.
type WarmStats struct {
	Synthesized int
	Cached      int
	Failed      int
}

// Warmer pre-synthesizes tour narration into a shared cache so the first
// visitor of a step does not wait on the remote service.
type Warmer struct {
	remote      Remote
	cache       ports.AudioCache
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	concurrency int
	logger      *slog.Logger
}

// WarmOption configures a Warmer.
type WarmOption func(*Warmer)

// WithLocker serializes the synthesis of each clip across processes.
func WithLocker(l ports.DistributedLocker, ttl time.Duration) WarmOption {
	return func(w *Warmer) {
		w.locker = l
		w.lockTTL = ttl
	}
}

// WithConcurrency bounds parallel remote requests.
func WithConcurrency(n int) WarmOption {
	return func(w *Warmer) { w.concurrency = n }
}

// WithWarmLogger sets the logger.
func WithWarmLogger(l *slog.Logger) WarmOption {
	return func(w *Warmer) { w.logger = l }
}

// NewWarmer creates a Warmer.
func NewWarmer(remote Remote, cache ports.AudioCache, opts ...WarmOption) *Warmer {
	w := &Warmer{
		remote:      remote,
		cache:       cache,
		lockTTL:     30 * time.Second,
		concurrency: 4,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Warm synthesizes the narration of every step of tours in voice. A failing
// clip is counted and logged; only ctx cancellation aborts the run.
func (w *Warmer) Warm(ctx context.Context, voice Voice, tours ...domain.TourDefinition) (WarmStats, error) {
	if w.remote == nil {
		return WarmStats{}, errors.New("no remote synthesizer configured")
	}
	if voice.Speed <= 0 {
		voice.Speed = 1
	}

	seen := make(map[string]bool)
	var texts []string
	for _, t := range tours {
		for _, ps := range t.Steps() {
			if ps.Narration == "" || seen[ps.Narration] {
				continue
			}
			seen[ps.Narration] = true
			texts = append(texts, ps.Narration)
		}
	}

	var synthesized, cached, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, text := range texts {
		g.Go(func() error {
			hit, err := w.warmOne(gctx, text, voice)
			switch {
			case gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				w.logger.Warn("narration warm failed", "text", text, "err", err)
			case hit:
				cached.Add(1)
			default:
				synthesized.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	return WarmStats{
		Synthesized: int(synthesized.Load()),
		Cached:      int(cached.Load()),
		Failed:      int(failed.Load()),
	}, err
}

func (w *Warmer) warmOne(ctx context.Context, text string, voice Voice) (hit bool, err error) {
	key := CacheKey(text, voice)
	if _, ok, err := w.cache.Get(ctx, key); err == nil && ok {
		return true, nil
	}

	if w.locker != nil {
		unlock, err := w.locker.Lock(ctx, key, w.lockTTL)
		if err != nil {
			return false, fmt.Errorf("lock %s: %w", key, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("narration unlock failed", "key", key, "err", err)
			}
		}()
		// Another instance may have filled it while we waited.
		if _, ok, err := w.cache.Get(ctx, key); err == nil && ok {
			return true, nil
		}
	}

	clip, err := w.remote.Synthesize(ctx, Request{Text: text, VoiceID: voice.ID, Speed: voice.Speed, Language: voice.Language})
	if err != nil {
		return false, err
	}
	return false, w.cache.Put(ctx, key, clip)
}
