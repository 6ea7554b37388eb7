package ports

import (
	"context"

	"github.com/aretw0/narrate/pkg/domain"
)

// Playback is a handle to audio that is currently playing.
type Playback interface {
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
	// Err reports why playback ended: nil when it ran to completion,
	// domain.ErrStopped when it was stopped.
	Err() error
	Pause() error
	Resume() error
	Stop() error
	SetRate(rate float64) error
}

// AudioPlayer plays synthesized clips on the surface.
type AudioPlayer interface {
	Play(ctx context.Context, clip domain.AudioClip, rate float64) (Playback, error)
}

// NativeSpeaker is the platform speech capability used when remote synthesis fails.
// It produces no cacheable clip.
type NativeSpeaker interface {
	Speak(ctx context.Context, text, language string, rate float64) (Playback, error)
}

// SpeechEngine streams recognition results until ctx is cancelled or the audio ends.
type SpeechEngine interface {
	Listen(ctx context.Context, language string, results func(domain.Transcript)) error
}

// AudioCache memoizes synthesized narration by key.
type AudioCache interface {
	// Get returns the clip and true on a hit.
	Get(ctx context.Context, key string) (domain.AudioClip, bool, error)
	Put(ctx context.Context, key string, clip domain.AudioClip) error
}
