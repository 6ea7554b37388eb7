package speech_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEngine emits its transcripts, then waits for cancellation.
type scriptedEngine struct {
	results []domain.Transcript
	err     error
}

func (e *scriptedEngine) Listen(ctx context.Context, _ string, emit func(domain.Transcript)) error {
	for _, r := range e.results {
		emit(r)
	}
	if e.err != nil {
		return e.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type recorder struct {
	mu      sync.Mutex
	started int
	results []domain.Transcript
	ended   int
	errs    []error
}

func (r *recorder) handlers() speech.Handlers {
	return speech.Handlers{
		OnStart:  func() { r.mu.Lock(); r.started++; r.mu.Unlock() },
		OnResult: func(t domain.Transcript) { r.mu.Lock(); r.results = append(r.results, t); r.mu.Unlock() },
		OnEnd:    func() { r.mu.Lock(); r.ended++; r.mu.Unlock() },
		OnError:  func(err error) { r.mu.Lock(); r.errs = append(r.errs, err); r.mu.Unlock() },
	}
}

func (r *recorder) snapshot() (int, []domain.Transcript, int, []error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, append([]domain.Transcript(nil), r.results...), r.ended, append([]error(nil), r.errs...)
}

func TestRecognizer_Unsupported(t *testing.T) {
	r := speech.NewRecognizer(nil, "en", nil)
	rec := &recorder{}

	sub := r.Start(context.Background(), rec.handlers())
	sub.Cancel()

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], speech.ErrRecognitionUnsupported)
	assert.False(t, r.Supported())
}

func TestRecognizer_InterimAndFinal(t *testing.T) {
	engine := &scriptedEngine{results: []domain.Transcript{
		{Text: "how do", Final: false},
		{Text: "how do I export", Final: true, Confidence: 0.9},
	}}
	r := speech.NewRecognizer(engine, "en", nil)
	rec := &recorder{}

	r.Start(context.Background(), rec.handlers())
	require.Eventually(t, func() bool {
		_, res, _, _ := rec.snapshot()
		return len(res) == 2
	}, time.Second, time.Millisecond)

	r.Stop()
	require.Eventually(t, func() bool { return !r.Listening() }, time.Second, time.Millisecond)

	started, res, ended, errs := rec.snapshot()
	assert.Equal(t, 1, started)
	assert.False(t, res[0].Final)
	assert.True(t, res[1].Final)
	assert.Equal(t, 1, ended, "graceful stop ends the session")
	assert.Empty(t, errs)
}

func TestRecognizer_AbortSilences(t *testing.T) {
	r := speech.NewRecognizer(&scriptedEngine{}, "en", nil)
	rec := &recorder{}

	sub := r.Start(context.Background(), rec.handlers())
	require.Eventually(t, r.Listening, time.Second, time.Millisecond)
	sub.Cancel()

	require.Eventually(t, func() bool { return !r.Listening() }, time.Second, time.Millisecond)
	_, _, ended, _ := rec.snapshot()
	assert.Equal(t, 0, ended)
}

func TestRecognizer_EngineError(t *testing.T) {
	r := speech.NewRecognizer(&scriptedEngine{err: errors.New("socket closed")}, "en", nil)
	rec := &recorder{}

	r.Start(context.Background(), rec.handlers())
	require.Eventually(t, func() bool {
		_, _, ended, _ := rec.snapshot()
		return ended == 1
	}, time.Second, time.Millisecond)

	_, _, _, errs := rec.snapshot()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "socket closed")
}

func TestRecognizer_OneSessionAtATime(t *testing.T) {
	r := speech.NewRecognizer(&scriptedEngine{}, "en", nil)
	first, second := &recorder{}, &recorder{}

	r.Start(context.Background(), first.handlers())
	r.Start(context.Background(), second.handlers())
	require.Eventually(t, func() bool {
		s, _, _, _ := second.snapshot()
		return s == 1
	}, time.Second, time.Millisecond)

	r.Stop()
	require.Eventually(t, func() bool {
		_, _, e, _ := second.snapshot()
		return e == 1
	}, time.Second, time.Millisecond)

	_, _, firstEnded, _ := first.snapshot()
	assert.Equal(t, 0, firstEnded, "the first session was aborted, not ended")
}
