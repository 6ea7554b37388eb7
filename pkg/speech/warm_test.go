package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingLocker struct {
	mu    sync.Mutex
	locks []string
}

func (l *countingLocker) Lock(_ context.Context, key string, _ time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.locks = append(l.locks, key)
	l.mu.Unlock()
	return func(context.Context) error { return nil }, nil
}

func warmTour() domain.TourDefinition {
	return domain.TourDefinition{
		ID: "onboarding",
		Pages: []domain.Page{
			{ID: "a", Steps: []domain.Step{
				{ID: "one", Narration: "Welcome"},
				{ID: "two", Narration: "Search here"},
				{ID: "three", Selector: "#x"},
			}},
			{ID: "b", Steps: []domain.Step{{ID: "four", Narration: "Welcome"}}},
		},
	}
}

func TestWarmer_Warm(t *testing.T) {
	remote := new(MockRemote)
	remote.On("Synthesize", mock.Anything, mock.MatchedBy(func(r speech.Request) bool { return r.Text == "Welcome" })).
		Return(domain.AudioClip{Data: []byte("w"), MIME: "audio/mpeg"}, nil).Once()
	remote.On("Synthesize", mock.Anything, mock.MatchedBy(func(r speech.Request) bool { return r.Text == "Search here" })).
		Return(domain.AudioClip{}, errors.New("quota exceeded")).Once()

	cache := memory.NewAudioCache()
	locker := &countingLocker{}
	w := speech.NewWarmer(remote, cache, speech.WithLocker(locker, time.Second), speech.WithConcurrency(1))

	stats, err := w.Warm(context.Background(), voice, warmTour())
	require.NoError(t, err)
	assert.Equal(t, speech.WarmStats{Synthesized: 1, Failed: 1}, stats)
	assert.Equal(t, 1, cache.Len())
	assert.Len(t, locker.locks, 2)

	_, ok, err := cache.Get(context.Background(), speech.CacheKey("Welcome", voice))
	require.NoError(t, err)
	assert.True(t, ok)
	remote.AssertExpectations(t)
}

func TestWarmer_SkipsCachedClips(t *testing.T) {
	remote := new(MockRemote)
	cache := memory.NewAudioCache()
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, speech.CacheKey("Welcome", voice), domain.AudioClip{Data: []byte("w")}))
	require.NoError(t, cache.Put(ctx, speech.CacheKey("Search here", voice), domain.AudioClip{Data: []byte("s")}))

	stats, err := speech.NewWarmer(remote, cache).Warm(ctx, voice, warmTour())
	require.NoError(t, err)
	assert.Equal(t, speech.WarmStats{Cached: 2}, stats)
	remote.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything)
}

func TestWarmer_RequiresRemote(t *testing.T) {
	_, err := speech.NewWarmer(nil, memory.NewAudioCache()).Warm(context.Background(), voice, warmTour())
	require.Error(t, err)
}
