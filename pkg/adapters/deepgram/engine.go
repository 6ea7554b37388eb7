// Package deepgram recognizes speech with Deepgram's live transcription API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// AudioSource opens the audio of one listening session, typically a microphone.
type AudioSource func(ctx context.Context) (io.ReadCloser, error)

// Format describes the raw audio an AudioSource produces.
type Format struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// stream is the live connection used by a session.
type stream interface {
	Connect() bool
	Stream(r io.Reader) error
	Stop()
}

type dialFunc func(ctx context.Context, language string, cb msginterfaces.LiveMessageCallback) (stream, error)

// Engine implements ports.SpeechEngine.
type Engine struct {
	source     AudioSource
	confidence float64
	logger     *slog.Logger
	dial       dialFunc
}

var _ ports.SpeechEngine = (*Engine)(nil)

type options struct {
	model      string
	format     Format
	confidence float64
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithModel selects the recognition model. Default: nova-2.
func WithModel(m string) Option {
	return func(o *options) { o.model = m }
}

// WithFormat sets the audio format. Default: 16 kHz mono linear16.
func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

// WithConfidence drops results below threshold.
func WithConfidence(threshold float64) Option {
	return func(o *options) { o.confidence = threshold }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an engine that transcribes audio from source.
func New(apiKey string, source AudioSource, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is required")
	}
	if source == nil {
		return nil, errors.New("deepgram: audio source is required")
	}
	o := options{
		model:  "nova-2",
		format: Format{Encoding: "linear16", SampleRate: 16000, Channels: 1},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	dial := func(ctx context.Context, language string, cb msginterfaces.LiveMessageCallback) (stream, error) {
		tOptions := &interfaces.LiveTranscriptionOptions{
			Language:       language,
			Model:          o.model,
			Encoding:       o.format.Encoding,
			SampleRate:     o.format.SampleRate,
			Channels:       o.format.Channels,
			Endpointing:    "300",
			InterimResults: true,
			SmartFormat:    true,
		}
		if language != "en" && strings.HasPrefix(o.model, "nova-3") {
			tOptions.Language = "multi"
		}
		cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
		c, err := listen.NewWebSocketUsingCallback(ctx, apiKey, cOptions, tOptions, cb)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return &Engine{source: source, confidence: o.confidence, logger: o.logger, dial: dial}, nil
}

// Listen streams the source to Deepgram until the audio ends or ctx is
// cancelled, reporting interim and final transcripts to results.
func (e *Engine) Listen(ctx context.Context, language string, results func(domain.Transcript)) error {
	src, err := e.source(ctx)
	if err != nil {
		return fmt.Errorf("deepgram: open audio: %w", err)
	}
	var closeOnce sync.Once
	closeSrc := func() { closeOnce.Do(func() { src.Close() }) }
	defer closeSrc()

	cb := &callback{results: results, confidence: e.confidence, logger: e.logger}
	st, err := e.dial(ctx, language, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create connection: %w", err)
	}
	if !st.Connect() {
		return errors.New("deepgram: connect failed")
	}

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(st.Stop) }
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Unblocks Stream
			closeSrc()
			stop()
		case <-done:
		}
	}()

	err = st.Stream(src)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("deepgram: stream: %w", err)
	}
	if err := cb.failure(); err != nil {
		return err
	}
	return nil
}

// callback translates Deepgram messages into transcripts.
type callback struct {
	results    func(domain.Transcript)
	confidence float64
	logger     *slog.Logger

	mu  sync.Mutex
	err error
}

var _ msginterfaces.LiveMessageCallback = (*callback)(nil)

func (c *callback) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *callback) Open(*msginterfaces.OpenResponse) error {
	c.logger.Debug("deepgram: connection opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return nil
	}
	if alt.Confidence < c.confidence {
		c.logger.Debug("deepgram: discarding low confidence transcript", "confidence", alt.Confidence)
		return nil
	}
	c.results(domain.Transcript{Text: text, Final: mr.IsFinal, Confidence: alt.Confidence})
	return nil
}

func (c *callback) Metadata(*msginterfaces.MetadataResponse) error { return nil }

func (c *callback) SpeechStarted(*msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(*msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(*msginterfaces.CloseResponse) error {
	c.logger.Debug("deepgram: connection closed")
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.mu.Lock()
	c.err = fmt.Errorf("deepgram: %+v", *er)
	c.mu.Unlock()
	c.logger.Warn("deepgram: error", "err", c.err)
	return nil
}

func (c *callback) UnhandledEvent(data []byte) error {
	c.logger.Debug("deepgram: unhandled event", "size", len(data))
	return nil
}
