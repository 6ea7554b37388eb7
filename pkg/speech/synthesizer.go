package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Voice selects how narration sounds.
type Voice struct {
	ID       string
	Speed    float64
	Language string
}

// Synthesizer speaks narration, one handle at a time.
type Synthesizer struct {
	remote     Remote
	cache      ports.AudioCache
	player     ports.AudioPlayer
	native     ports.NativeSpeaker
	logger     *slog.Logger
	onCache    func(hit bool)
	speedLocks bool

	mu       sync.Mutex
	voice    Voice
	seq      uint64
	held     bool
	active   *handle
}

type handle struct {
	id       uint64
	pb       ports.Playback
	native   bool
	speed    float64
	stopWith error
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithCache replaces the default in-memory cache.
func WithCache(c ports.AudioCache) Option {
	return func(s *Synthesizer) { s.cache = c }
}

// WithNative sets the fallback used when remote synthesis fails.
func WithNative(n ports.NativeSpeaker) Option {
	return func(s *Synthesizer) { s.native = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// WithCacheHook observes every cache lookup.
func WithCacheHook(fn func(hit bool)) Option {
	return func(s *Synthesizer) { s.onCache = fn }
}

// WithSpeedLocked refuses SetSpeed calls.
func WithSpeedLocked(locked bool) Option {
	return func(s *Synthesizer) { s.speedLocks = locked }
}

// NewSynthesizer creates a Synthesizer. remote may be nil, in which case every
// narration goes through the native speaker.
func NewSynthesizer(remote Remote, player ports.AudioPlayer, voice Voice, opts ...Option) *Synthesizer {
	if voice.Speed <= 0 {
		voice.Speed = 1
	}
	s := &Synthesizer{
		remote: remote,
		player: player,
		voice:  voice,
		cache:  memory.NewAudioCache(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CacheKey identifies a clip by everything that changes how it sounds.
func CacheKey(text string, v Voice) string {
	h := sha256.New()
	for _, part := range []string{text, v.ID, strconv.FormatFloat(v.Speed, 'f', 2, 64), v.Language} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Speak narrates text and blocks until playback ends.
// It returns domain.ErrPreempted when a newer Speak replaced it, domain.ErrStopped
// when Stop was called, and ctx.Err() when ctx was cancelled.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.seq++
	id := s.seq
	voice := s.voice
	s.stopActiveLocked(domain.ErrPreempted)
	s.mu.Unlock()

	clip, ok := s.lookup(ctx, text, voice)
	if !ok {
		fetched, err := s.fetch(ctx, text, voice)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("remote synthesis failed, using native speech", "err", err)
			return s.speakNative(ctx, id, text, voice)
		}
		clip = fetched
		if err := s.cache.Put(ctx, CacheKey(text, voice), clip); err != nil {
			s.logger.Warn("audio cache put failed", "err", err)
		}
	}

	s.mu.Lock()
	if s.seq != id {
		s.mu.Unlock()
		return domain.ErrPreempted
	}
	s.mu.Unlock()

	pb, err := s.player.Play(ctx, clip, 1)
	if err != nil {
		return fmt.Errorf("play narration: %w", err)
	}
	return s.await(ctx, &handle{id: id, pb: pb, speed: voice.Speed})
}

func (s *Synthesizer) lookup(ctx context.Context, text string, v Voice) (domain.AudioClip, bool) {
	clip, ok, err := s.cache.Get(ctx, CacheKey(text, v))
	if err != nil {
		s.logger.Warn("audio cache get failed", "err", err)
		ok = false
	}
	if s.onCache != nil {
		s.onCache(ok)
	}
	return clip, ok
}

func (s *Synthesizer) fetch(ctx context.Context, text string, v Voice) (domain.AudioClip, error) {
	if s.remote == nil {
		return domain.AudioClip{}, fmt.Errorf("no remote synthesizer configured")
	}
	return s.remote.Synthesize(ctx, Request{Text: text, VoiceID: v.ID, Speed: v.Speed, Language: v.Language})
}

func (s *Synthesizer) speakNative(ctx context.Context, id uint64, text string, v Voice) error {
	if s.native == nil {
		return fmt.Errorf("native speech: %w", domain.ErrUnsupported)
	}
	s.mu.Lock()
	if s.seq != id {
		s.mu.Unlock()
		return domain.ErrPreempted
	}
	s.mu.Unlock()

	pb, err := s.native.Speak(ctx, text, v.Language, v.Speed)
	if err != nil {
		return fmt.Errorf("native speech: %w", err)
	}
	return s.await(ctx, &handle{id: id, pb: pb, native: true, speed: v.Speed})
}

// await installs h as the active handle and waits for it to end.
func (s *Synthesizer) await(ctx context.Context, h *handle) error {
	s.mu.Lock()
	if s.seq != h.id {
		s.mu.Unlock()
		_ = h.pb.Stop()
		return domain.ErrPreempted
	}
	s.active = h
	if s.held {
		_ = h.pb.Pause()
	}
	s.mu.Unlock()

	select {
	case <-h.pb.Done():
	case <-ctx.Done():
		_ = h.pb.Stop()
		<-h.pb.Done()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = nil
	}
	if h.stopWith != nil {
		return h.stopWith
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.pb.Err()
}

func (s *Synthesizer) stopActiveLocked(reason error) {
	if s.active == nil {
		return
	}
	s.active.stopWith = reason
	_ = s.active.pb.Stop()
	s.active = nil
}

// Pause holds the current narration. Narrations started while held begin
// paused, so a Speak racing with Pause never plays through it.
func (s *Synthesizer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = true
	if s.active != nil {
		_ = s.active.pb.Pause()
	}
}

// Resume continues a held narration from where it stopped.
func (s *Synthesizer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	if s.active != nil {
		_ = s.active.pb.Resume()
	}
}

// Stop ends the current narration, discards any narration being fetched and
// releases a hold.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.held = false
	s.stopActiveLocked(domain.ErrStopped)
}

// SetSpeed changes the speed of future narrations and of the one playing now.
func (s *Synthesizer) SetSpeed(v float64) error {
	if s.speedLocks {
		return ErrSpeedLocked
	}
	if v <= 0 {
		return fmt.Errorf("invalid speed %v", v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice.Speed = v
	if s.active == nil {
		return nil
	}
	rate := v
	if !s.active.native {
		// Remote clips are synthesized at the speed they were requested with
		rate = v / s.active.speed
	}
	return s.active.pb.SetRate(rate)
}

// Speed returns the current speed.
func (s *Synthesizer) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice.Speed
}

// Held reports whether narration is paused.
func (s *Synthesizer) Held() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// Speaking reports whether a narration handle is active.
func (s *Synthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
