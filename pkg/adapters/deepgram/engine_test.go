package deepgram

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(text string, confidence float64, final bool) *msginterfaces.MessageResponse {
	return &msginterfaces.MessageResponse{
		IsFinal: final,
		Channel: msginterfaces.Channel{
			Alternatives: []msginterfaces.Alternative{{Transcript: text, Confidence: confidence}},
		},
	}
}

// fakeStream replays scripted messages while the audio is read.
type fakeStream struct {
	cb       msginterfaces.LiveMessageCallback
	messages []*msginterfaces.MessageResponse
	connect  bool

	mu      sync.Mutex
	read    []byte
	stopped bool
}

func (f *fakeStream) Connect() bool { return f.connect }

func (f *fakeStream) Stream(r io.Reader) error {
	data, err := io.ReadAll(r)
	f.mu.Lock()
	f.read = data
	f.mu.Unlock()
	for _, m := range f.messages {
		f.cb.Message(m)
	}
	if err != nil {
		return err
	}
	return io.EOF
}

func (f *fakeStream) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func newTestEngine(st *fakeStream, source AudioSource, confidence float64) *Engine {
	return &Engine{
		source:     source,
		confidence: confidence,
		logger:     logging.NewNop(),
		dial: func(_ context.Context, language string, cb msginterfaces.LiveMessageCallback) (stream, error) {
			st.cb = cb
			return st, nil
		},
	}
}

func staticSource(s string) AudioSource {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", staticSource(""))
	require.Error(t, err)
	_, err = New("key", nil)
	require.Error(t, err)
	e, err := New("key", staticSource(""), WithModel("nova-3"), WithConfidence(0.5))
	require.NoError(t, err)
	assert.Equal(t, 0.5, e.confidence)
}

func TestEngine_Listen(t *testing.T) {
	st := &fakeStream{
		connect: true,
		messages: []*msginterfaces.MessageResponse{
			message("where is", 0.9, false),
			message("  ", 0.9, false),
			message("mumble", 0.2, false),
			message("where is the search box", 0.95, true),
		},
	}
	e := newTestEngine(st, staticSource("pcm-bytes"), 0.5)

	var got []domain.Transcript
	err := e.Listen(context.Background(), "en", func(tr domain.Transcript) { got = append(got, tr) })
	require.NoError(t, err)

	assert.Equal(t, []domain.Transcript{
		{Text: "where is", Confidence: 0.9},
		{Text: "where is the search box", Final: true, Confidence: 0.95},
	}, got)
	assert.Equal(t, "pcm-bytes", string(st.read))
	assert.True(t, st.stopped)
}

func TestEngine_ConnectFailure(t *testing.T) {
	e := newTestEngine(&fakeStream{connect: false}, staticSource(""), 0)
	err := e.Listen(context.Background(), "en", func(domain.Transcript) {})
	require.Error(t, err)
}

func TestEngine_SourceFailure(t *testing.T) {
	e := newTestEngine(&fakeStream{connect: true}, func(context.Context) (io.ReadCloser, error) {
		return nil, errors.New("no microphone")
	}, 0)
	err := e.Listen(context.Background(), "en", func(domain.Transcript) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no microphone")
}

func TestEngine_CancelStopsStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	st := &fakeStream{connect: true}
	e := newTestEngine(st, func(context.Context) (io.ReadCloser, error) { return pr, nil }, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Listen(ctx, "en", func(domain.Transcript) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestCallback_Error(t *testing.T) {
	st := &fakeStream{connect: true}
	e := newTestEngine(st, staticSource("x"), 0)
	st.messages = nil

	e.dial = func(_ context.Context, _ string, cb msginterfaces.LiveMessageCallback) (stream, error) {
		cb.Error(&msginterfaces.ErrorResponse{})
		st.cb = cb
		return st, nil
	}
	err := e.Listen(context.Background(), "en", func(domain.Transcript) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepgram")
}
