package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRemote is a mock implementation of speech.Remote.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) Synthesize(ctx context.Context, req speech.Request) (domain.AudioClip, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.AudioClip), args.Error(1)
}

var voice = speech.Voice{ID: "aria", Speed: 1, Language: "en"}

func TestSpeak_CacheHitIdempotence(t *testing.T) {
	remote := new(MockRemote)
	remote.On("Synthesize", mock.Anything, speech.Request{Text: "Welcome", VoiceID: "aria", Speed: 1, Language: "en"}).
		Return(domain.AudioClip{Data: []byte("mp3"), MIME: "audio/mpeg"}, nil).Once()

	player := memory.NewPlayer(time.Millisecond)
	var hits []bool
	s := speech.NewSynthesizer(remote, player, voice, speech.WithCacheHook(func(hit bool) { hits = append(hits, hit) }))

	require.NoError(t, s.Speak(context.Background(), "Welcome"))
	require.NoError(t, s.Speak(context.Background(), "Welcome"))

	remote.AssertNumberOfCalls(t, "Synthesize", 1)
	assert.Len(t, player.Clips(), 2)
	assert.Equal(t, []bool{false, true}, hits)
}

func TestCacheKey(t *testing.T) {
	base := speech.CacheKey("hello", voice)
	assert.Equal(t, base, speech.CacheKey("hello", voice))

	variants := []speech.Voice{
		{ID: "other", Speed: 1, Language: "en"},
		{ID: "aria", Speed: 1.25, Language: "en"},
		{ID: "aria", Speed: 1, Language: "pt"},
	}
	for _, v := range variants {
		assert.NotEqual(t, base, speech.CacheKey("hello", v))
	}
	assert.NotEqual(t, base, speech.CacheKey("hello!", voice))
}

func TestSpeak_FallsBackToNative(t *testing.T) {
	remote := new(MockRemote)
	remote.On("Synthesize", mock.Anything, mock.Anything).Return(domain.AudioClip{}, errors.New("503"))

	player := memory.NewPlayer(time.Millisecond)
	s := speech.NewSynthesizer(remote, player, voice, speech.WithNative(player))

	require.NoError(t, s.Speak(context.Background(), "Hi"))
	require.NoError(t, s.Speak(context.Background(), "Hi"))

	// Native speech produces nothing cacheable, so both misses hit the network
	remote.AssertNumberOfCalls(t, "Synthesize", 2)
	assert.Equal(t, []string{"Hi", "Hi"}, player.Spoken())
	assert.Empty(t, player.Clips())
}

func TestSpeak_NoFallbackAvailable(t *testing.T) {
	remote := new(MockRemote)
	remote.On("Synthesize", mock.Anything, mock.Anything).Return(domain.AudioClip{}, errors.New("down"))

	s := speech.NewSynthesizer(remote, memory.NewPlayer(time.Millisecond), voice)
	err := s.Speak(context.Background(), "Hi")
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestSpeak_NewerPreemptsOlder(t *testing.T) {
	player := memory.NewPlayer(time.Hour)
	s := speech.NewSynthesizer(nil, player, voice, speech.WithNative(player))

	var wg sync.WaitGroup
	var first error
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = s.Speak(context.Background(), "one")
	}()
	require.Eventually(t, s.Speaking, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Speak(ctx, "two") }()

	wg.Wait()
	assert.ErrorIs(t, first, domain.ErrPreempted)

	require.Eventually(t, func() bool { return len(player.Spoken()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSpeak_PauseResume(t *testing.T) {
	player := memory.NewPlayer(60 * time.Millisecond)
	s := speech.NewSynthesizer(nil, player, voice, speech.WithNative(player))

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "long narration") }()
	require.Eventually(t, s.Speaking, time.Second, time.Millisecond)

	s.Pause()
	select {
	case <-done:
		t.Fatal("narration finished while paused")
	case <-time.After(150 * time.Millisecond):
	}

	s.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("narration never resumed")
	}
	assert.Len(t, player.Spoken(), 1, "resume does not replay")
}

func TestSpeak_StartsHeldWhilePaused(t *testing.T) {
	player := memory.NewPlayer(20 * time.Millisecond)
	s := speech.NewSynthesizer(nil, player, voice, speech.WithNative(player))

	s.Pause()
	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "queued") }()
	require.Eventually(t, s.Speaking, time.Second, time.Millisecond)
	assert.True(t, player.Last().Paused())

	s.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("held narration never resumed")
	}
}

func TestSpeak_Stop(t *testing.T) {
	player := memory.NewPlayer(time.Hour)
	s := speech.NewSynthesizer(nil, player, voice, speech.WithNative(player))

	done := make(chan error, 1)
	go func() { done <- s.Speak(context.Background(), "x") }()
	require.Eventually(t, s.Speaking, time.Second, time.Millisecond)

	s.Stop()
	assert.ErrorIs(t, <-done, domain.ErrStopped)
	assert.False(t, s.Speaking())
}

func TestSetSpeed(t *testing.T) {
	player := memory.NewPlayer(time.Hour)

	locked := speech.NewSynthesizer(nil, player, voice, speech.WithSpeedLocked(true))
	assert.ErrorIs(t, locked.SetSpeed(2), speech.ErrSpeedLocked)

	s := speech.NewSynthesizer(nil, player, voice, speech.WithNative(player))
	assert.Error(t, s.SetSpeed(0))

	go func() { _ = s.Speak(context.Background(), "x") }()
	require.Eventually(t, s.Speaking, time.Second, time.Millisecond)

	require.NoError(t, s.SetSpeed(1.5))
	assert.Equal(t, 1.5, s.Speed())
	assert.Equal(t, 1.5, player.Last().Rate())
	s.Stop()
}
