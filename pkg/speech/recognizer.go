package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Handlers receive the events of one listening session. Any of them may be nil.
// They are called from the session's goroutine.
type Handlers struct {
	OnStart  func()
	OnResult func(domain.Transcript)
	OnEnd    func()
	OnError  func(error)
}

// Recognizer runs at most one listening session at a time.
type Recognizer struct {
	engine   ports.SpeechEngine
	language string
	logger   *slog.Logger

	mu      sync.Mutex
	current *session
}

type session struct {
	cancel  context.CancelFunc
	aborted atomic.Bool
}

// NewRecognizer wraps engine. A nil engine makes every Start report ErrRecognitionUnsupported.
func NewRecognizer(engine ports.SpeechEngine, language string, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recognizer{engine: engine, language: language, logger: logger}
}

// Supported reports whether an engine is available.
func (r *Recognizer) Supported() bool {
	return r.engine != nil
}

// Start begins listening. A session already running is aborted first.
// Cancelling the returned subscription aborts this session only.
func (r *Recognizer) Start(ctx context.Context, h Handlers) ports.Subscription {
	if r.engine == nil {
		if h.OnError != nil {
			h.OnError(ErrRecognitionUnsupported)
		}
		return ports.SubscriptionFunc(nil)
	}

	r.Abort()

	sctx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel}

	r.mu.Lock()
	r.current = sess
	r.mu.Unlock()

	go r.run(sctx, sess, h)

	return ports.SubscriptionFunc(func() { r.abort(sess) })
}

func (r *Recognizer) run(ctx context.Context, sess *session, h Handlers) {
	defer func() {
		r.mu.Lock()
		if r.current == sess {
			r.current = nil
		}
		r.mu.Unlock()
	}()

	if h.OnStart != nil {
		h.OnStart()
	}

	err := r.engine.Listen(ctx, r.language, func(t domain.Transcript) {
		if sess.aborted.Load() || h.OnResult == nil {
			return
		}
		h.OnResult(t)
	})

	if sess.aborted.Load() {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("speech recognition failed", "err", err)
		if h.OnError != nil {
			h.OnError(err)
		}
	}
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// Stop ends the current session gracefully: results already produced are
// delivered and OnEnd is called. It does not wait, so handlers may call it.
func (r *Recognizer) Stop() {
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	if sess == nil {
		return
	}
	sess.cancel()
}

// Abort ends the current session without delivering further events.
func (r *Recognizer) Abort() {
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	r.abort(sess)
}

func (r *Recognizer) abort(sess *session) {
	if sess == nil {
		return
	}
	sess.aborted.Store(true)
	sess.cancel()
}

// Listening reports whether a session is running.
func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil
}
