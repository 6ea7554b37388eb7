package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Playback simulates audio that takes a fixed time to play.
// Pausing freezes the remaining time.
type Playback struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	timer     *time.Timer
	remaining time.Duration
	started   time.Time
	paused    bool
	finished  bool
	rate      float64
}

var _ ports.Playback = (*Playback)(nil)

// NewPlayback starts a playback that ends after d.
func NewPlayback(d time.Duration, rate float64) *Playback {
	p := &Playback{
		done:      make(chan struct{}),
		remaining: d,
		started:   time.Now(),
		rate:      rate,
	}
	p.timer = time.AfterFunc(d, func() { p.finish(nil) })
	return p
}

func (p *Playback) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.err = err
	if p.timer != nil {
		p.timer.Stop()
	}
	close(p.done)
}

func (p *Playback) Done() <-chan struct{} { return p.done }

func (p *Playback) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Playback) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || p.paused {
		return nil
	}
	if p.timer.Stop() {
		p.remaining -= time.Since(p.started)
		if p.remaining < 0 {
			p.remaining = 0
		}
		p.paused = true
	}
	return nil
}

func (p *Playback) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || !p.paused {
		return nil
	}
	p.paused = false
	p.started = time.Now()
	p.timer = time.AfterFunc(p.remaining, func() { p.finish(nil) })
	return nil
}

func (p *Playback) Stop() error {
	p.finish(domain.ErrStopped)
	return nil
}

func (p *Playback) SetRate(rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	return nil
}

// Paused reports whether the playback is on hold.
func (p *Playback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Rate returns the current playback rate.
func (p *Playback) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// Player implements ports.AudioPlayer and ports.NativeSpeaker with simulated playback.
type Player struct {
	mu       sync.Mutex
	duration time.Duration
	clips    []domain.AudioClip
	spoken   []string
	last     *Playback

	// Unsupported makes native speech report domain.ErrUnsupported.
	Unsupported bool
}

var (
	_ ports.AudioPlayer   = (*Player)(nil)
	_ ports.NativeSpeaker = (*Player)(nil)
)

// NewPlayer creates a player whose clips each last d.
func NewPlayer(d time.Duration) *Player {
	return &Player{duration: d}
}

func (p *Player) Play(_ context.Context, clip domain.AudioClip, rate float64) (ports.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips = append(p.clips, clip)
	p.last = NewPlayback(p.duration, rate)
	return p.last, nil
}

func (p *Player) Speak(_ context.Context, text, _ string, rate float64) (ports.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unsupported {
		return nil, domain.ErrUnsupported
	}
	p.spoken = append(p.spoken, text)
	p.last = NewPlayback(p.duration, rate)
	return p.last, nil
}

// Clips returns every clip played, in order.
func (p *Player) Clips() []domain.AudioClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AudioClip(nil), p.clips...)
}

// Spoken returns every text handed to native speech, in order.
func (p *Player) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// Last returns the most recent playback, or nil.
func (p *Player) Last() *Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}
