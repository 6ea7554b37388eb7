package memory

import (
	"context"
	"sync"

	"github.com/aretw0/narrate/pkg/domain"
)

// AudioCache implements ports.AudioCache in memory.
// Safe for concurrent use.
type AudioCache struct {
	data map[string]domain.AudioClip
	mu   sync.RWMutex
}

// NewAudioCache creates an empty in-memory cache.
func NewAudioCache() *AudioCache {
	return &AudioCache{
		data: make(map[string]domain.AudioClip),
	}
}

// Get returns a copy of the cached clip.
func (c *AudioCache) Get(_ context.Context, key string) (domain.AudioClip, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clip, ok := c.data[key]
	if !ok {
		return domain.AudioClip{}, false, nil
	}
	// Copy on read so callers can't mutate cached bytes
	data := make([]byte, len(clip.Data))
	copy(data, clip.Data)
	return domain.AudioClip{Data: data, MIME: clip.MIME}, true, nil
}

// Put stores the clip under key.
func (c *AudioCache) Put(_ context.Context, key string, clip domain.AudioClip) error {
	data := make([]byte, len(clip.Data))
	copy(data, clip.Data)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = domain.AudioClip{Data: data, MIME: clip.MIME}
	return nil
}

// Len returns the number of cached clips.
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
