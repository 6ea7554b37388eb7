// Package conversation implements the modal that lets a user ask questions mid-tour.
//
// The overlay is bound to the current tour context. A question is answered from a
// screenshot of the page, the context and optional knowledge text; the answer is
// appended to the transcript and spoken. Failures end up in the transcript as a
// single system message, never as an error for the caller.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/capture"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/microcosm-cc/bluemonday"
)

// Layer names owned by the overlay.
const (
	ModalLayer   = "narrate-conversation"
	TriggerLayer = "narrate-trigger"
)

// Capture modes for question screenshots.
const (
	CaptureViewport = "viewport"
	CaptureElement  = "element"
)

// System messages shown in the transcript.
const (
	MsgAnswerFailed      = "Sorry, I couldn't answer that right now. Please try again."
	MsgVoiceUnavailable  = "Voice input isn't available here. Type your question instead."
	MsgVoiceFailed       = "I couldn't hear that. Please try again."
	MsgQuestionTooLong   = "That question is too long. Please shorten it and ask again."
	defaultGreetingTmpl  = "Hi, I'm %s. Ask me anything about this page."
	defaultAgentName     = "Guide"
	defaultSnapshotDepth = 4
)

// ErrNotOpen is returned by Ask and Listen while the overlay is closed.
var ErrNotOpen = errors.New("conversation is not open")

// Speaker speaks answers. Stop silences whatever it is saying.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Settings mirror the conversation section of the widget configuration.
type Settings struct {
	AgentName      string
	Personality    string
	Greeting       string
	ButtonLabel    string
	ButtonPosition string
	ShowTranscript bool
	TextFallback   bool
	// NoTrigger keeps the trigger button hidden; the conversation is then
	// opened only programmatically.
	NoTrigger bool

	Vision          bool
	CaptureMode     string
	IncludeSnapshot bool
	SnapshotDepth   int

	// MaxQuestionLength bounds a question in characters.
	// Zero means DefaultMaxQuestionLength.
	MaxQuestionLength int
}

// Overlay owns the conversation modal and trigger button layers.
// At most one conversation is open at a time.
type Overlay struct {
	surface    ports.Surface
	answerer   Answerer
	capturer   *capture.Capturer
	speaker    Speaker
	recognizer *speech.Recognizer
	knowledge  ports.KnowledgeBase
	settings   Settings
	policy     *bluemonday.Policy
	logger     *slog.Logger
	now        func() time.Time
	onContinue func()

	mu         sync.Mutex
	open       bool
	tc         domain.TourContext
	transcript []domain.Message
	draft      string
	gen        uint64
	cancelAsk  context.CancelFunc
	listening  ports.Subscription
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithCapturer enables screenshots of the page for each question.
func WithCapturer(c *capture.Capturer) Option {
	return func(o *Overlay) { o.capturer = c }
}

// WithSpeaker speaks each answer.
func WithSpeaker(s Speaker) Option {
	return func(o *Overlay) { o.speaker = s }
}

// WithRecognizer enables voice questions.
func WithRecognizer(r *speech.Recognizer) Option {
	return func(o *Overlay) { o.recognizer = r }
}

// WithKnowledge supplies grounding text for questions.
func WithKnowledge(kb ports.KnowledgeBase) Option {
	return func(o *Overlay) { o.knowledge = kb }
}

// WithContinue sets the callback invoked by Close.
func WithContinue(fn func()) Option {
	return func(o *Overlay) { o.onContinue = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Overlay) { o.logger = l }
}

// WithClock sets the time source for transcript timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Overlay) { o.now = now }
}

// New creates a closed overlay.
func New(surface ports.Surface, answerer Answerer, settings Settings, opts ...Option) *Overlay {
	if settings.AgentName == "" {
		settings.AgentName = defaultAgentName
	}
	if settings.Greeting == "" {
		settings.Greeting = fmt.Sprintf(defaultGreetingTmpl, settings.AgentName)
	}
	if settings.ButtonLabel == "" {
		settings.ButtonLabel = "Ask " + settings.AgentName
	}
	if settings.SnapshotDepth <= 0 {
		settings.SnapshotDepth = defaultSnapshotDepth
	}
	o := &Overlay{
		surface:  surface,
		answerer: answerer,
		settings: settings,
		policy:   bluemonday.UGCPolicy(),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetContinue replaces the callback invoked by Close.
func (o *Overlay) SetContinue(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onContinue = fn
}

// ShowTrigger draws the button that opens the conversation.
func (o *Overlay) ShowTrigger(ctx context.Context) error {
	if o.settings.NoTrigger {
		return nil
	}
	return o.surface.Draw(ctx, domain.Layer{
		Name:     TriggerLayer,
		Kind:     domain.LayerButton,
		Title:    o.settings.ButtonLabel,
		Position: o.settings.ButtonPosition,
		Visible:  true,
	})
}

// HideTrigger removes the trigger button.
func (o *Overlay) HideTrigger(ctx context.Context) error {
	return o.surface.Clear(ctx, TriggerLayer)
}

// Open shows the modal bound to tc. Opening an open overlay only refreshes its context.
func (o *Overlay) Open(ctx context.Context, tc domain.TourContext) error {
	o.mu.Lock()
	o.tc = tc
	if o.open {
		o.mu.Unlock()
		return nil
	}
	o.open = true
	o.gen++
	o.transcript = []domain.Message{{Role: domain.RoleAgent, Text: o.settings.Greeting, At: o.now()}}
	if err := o.HideTrigger(ctx); err != nil {
		o.logger.Debug("hide trigger failed", "err", err)
	}
	err := o.surface.Draw(ctx, o.layerLocked())
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("draw conversation: %w", err)
	}
	o.logger.Debug("conversation opened", "tour", tc.TourID, "step", tc.StepIndex)
	return nil
}

// IsOpen reports whether the modal is shown.
func (o *Overlay) IsOpen() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// Context returns the tour context the overlay is bound to.
func (o *Overlay) Context() domain.TourContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tc
}

// Transcript returns a copy of the messages shown so far.
func (o *Overlay) Transcript() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Message(nil), o.transcript...)
}

// Ask answers question and blocks until the answer is spoken.
// A newer Ask or Close cancels it. Only ErrNotOpen and the input errors of
// NormalizeQuestion are returned; a question over the length limit is also
// answered with a system message. Every other failure becomes a system
// message in the transcript.
func (o *Overlay) Ask(ctx context.Context, question string) error {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return ErrNotOpen
	}
	question, err := NormalizeQuestion(question, o.maxQuestionLength())
	if err != nil {
		if errors.Is(err, ErrQuestionTooLong) {
			o.appendLocked(domain.RoleSystem, MsgQuestionTooLong)
			o.redrawLocked(ctx)
		}
		o.mu.Unlock()
		return err
	}
	if o.cancelAsk != nil {
		o.cancelAsk()
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancelAsk = cancel
	gen := o.gen
	tc := o.tc
	o.draft = ""
	o.appendLocked(domain.RoleUser, question)
	o.redrawLocked(ctx)
	o.mu.Unlock()
	defer cancel()

	q := Question{
		Question:     question,
		SystemPrompt: SystemPrompt(o.settings.AgentName, o.settings.Personality, tc),
	}
	if tc.TourID != "" {
		q.Context = &tc
	}
	o.attachVisuals(ctx, &q, tc)
	if o.knowledge != nil {
		kb, err := o.knowledge.Lookup(ctx, question)
		if err != nil {
			o.logger.Warn("knowledge lookup failed", "err", err)
		}
		q.KnowledgeBase = kb
	}

	ans, err := o.answerer.Ask(ctx, q)
	if !o.current(ctx, gen) {
		return nil
	}
	if err != nil {
		o.logger.Warn("conversation answer failed", "err", err)
		o.post(ctx, gen, domain.RoleSystem, MsgAnswerFailed)
		return nil
	}

	text := o.post(ctx, gen, domain.RoleAgent, ans.Answer)
	if o.speaker == nil || text == "" {
		return nil
	}
	if err := o.speaker.Speak(ctx, plain(text)); err != nil && o.current(ctx, gen) &&
		!errors.Is(err, domain.ErrPreempted) && !errors.Is(err, domain.ErrStopped) {
		o.logger.Warn("speak answer failed", "err", err)
	}
	return nil
}

// attachVisuals adds the screenshot and structural snapshot when vision is enabled.
// A capture failure only drops the screenshot; the question is still asked.
func (o *Overlay) attachVisuals(ctx context.Context, q *Question, tc domain.TourContext) {
	if !o.settings.Vision || o.capturer == nil {
		return
	}

	var (
		img domain.Image
		err error
	)
	if o.settings.CaptureMode == CaptureElement && tc.CurrentStep != nil && tc.CurrentStep.Selector != "" {
		img, err = o.capturer.CaptureElement(ctx, tc.CurrentStep.Selector)
	} else {
		img, err = o.capturer.CaptureViewport(ctx)
	}
	if err != nil {
		o.logger.Warn("question screenshot failed", "err", err)
	} else {
		q.Screenshot = &img.DataURI
	}

	if o.settings.IncludeSnapshot {
		snap, err := o.capturer.StructuralSnapshot(ctx, o.settings.SnapshotDepth)
		if err != nil {
			o.logger.Debug("structural snapshot failed", "err", err)
			return
		}
		q.Snapshot = snap
	}
}

// Listen starts a voice question. Interim transcripts show as a draft; the
// first final transcript is asked. Cancel the returned subscription to stop early.
func (o *Overlay) Listen(ctx context.Context) (ports.Subscription, error) {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return nil, ErrNotOpen
	}
	gen := o.gen
	o.mu.Unlock()

	if o.recognizer == nil || !o.recognizer.Supported() {
		o.voiceUnavailable(ctx, gen)
		return ports.SubscriptionFunc(nil), nil
	}

	var once sync.Once
	sub := o.recognizer.Start(ctx, speech.Handlers{
		OnResult: func(t domain.Transcript) {
			if !t.Final {
				o.setDraft(ctx, gen, t.Text)
				return
			}
			once.Do(func() {
				o.recognizer.Stop()
				go func() {
					err := o.Ask(ctx, t.Text)
					switch {
					case err == nil, errors.Is(err, ErrNotOpen):
					case errors.Is(err, ErrEmptyQuestion):
						o.post(ctx, gen, domain.RoleSystem, MsgVoiceFailed)
					default:
						// Too long is already in the transcript
						o.logger.Warn("voice question rejected", "err", err)
					}
				}()
			})
		},
		OnError: func(err error) {
			if errors.Is(err, speech.ErrRecognitionUnsupported) {
				o.voiceUnavailable(ctx, gen)
				return
			}
			o.logger.Warn("voice question failed", "err", err)
			o.post(ctx, gen, domain.RoleSystem, MsgVoiceFailed)
		},
		OnEnd: func() {
			o.setDraft(ctx, gen, "")
		},
	})

	o.mu.Lock()
	if o.listening != nil {
		o.listening.Cancel()
	}
	o.listening = sub
	o.mu.Unlock()
	return sub, nil
}

func (o *Overlay) voiceUnavailable(ctx context.Context, gen uint64) {
	o.logger.Info("speech recognition unsupported")
	if o.settings.TextFallback {
		o.post(ctx, gen, domain.RoleSystem, MsgVoiceUnavailable)
	}
}

// Close stops listening and speaking, clears the transcript, hides the modal,
// restores the trigger and invokes the continue callback. Closing a closed
// overlay does nothing.
func (o *Overlay) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.open {
		o.mu.Unlock()
		return nil
	}
	o.open = false
	o.gen++
	o.transcript = nil
	o.draft = ""
	if o.cancelAsk != nil {
		o.cancelAsk()
		o.cancelAsk = nil
	}
	listening := o.listening
	o.listening = nil
	next := o.onContinue

	var errs []error
	if err := o.surface.Clear(ctx, ModalLayer); err != nil {
		errs = append(errs, fmt.Errorf("clear conversation: %w", err))
	}
	o.mu.Unlock()

	if listening != nil {
		listening.Cancel()
	}
	if o.recognizer != nil {
		o.recognizer.Abort()
	}
	if o.speaker != nil {
		o.speaker.Stop()
	}
	if err := o.ShowTrigger(ctx); err != nil {
		errs = append(errs, fmt.Errorf("show trigger: %w", err))
	}
	o.logger.Debug("conversation closed")

	if next != nil {
		next()
	}
	return errors.Join(errs...)
}

// Dismiss tears the overlay and trigger down without invoking the continue callback.
func (o *Overlay) Dismiss(ctx context.Context) error {
	o.mu.Lock()
	next := o.onContinue
	o.onContinue = nil
	o.mu.Unlock()

	err := o.Close(ctx)

	o.mu.Lock()
	o.onContinue = next
	o.mu.Unlock()

	return errors.Join(err, o.HideTrigger(ctx))
}

// current reports whether the conversation that started gen is still open.
func (o *Overlay) maxQuestionLength() int {
	if o.settings.MaxQuestionLength > 0 {
		return o.settings.MaxQuestionLength
	}
	return DefaultMaxQuestionLength
}

func (o *Overlay) current(ctx context.Context, gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open && o.gen == gen && ctx.Err() == nil
}

// post appends a message if the conversation is still current and redraws.
// It returns the text that was appended, or "" when dropped.
func (o *Overlay) post(ctx context.Context, gen uint64, role domain.Role, text string) string {
	o.mu.Lock()
	if !o.open || o.gen != gen {
		o.mu.Unlock()
		return ""
	}
	msg := o.appendLocked(role, text)
	o.redrawLocked(ctx)
	o.mu.Unlock()
	return msg.Text
}

func (o *Overlay) setDraft(ctx context.Context, gen uint64, text string) {
	o.mu.Lock()
	if !o.open || o.gen != gen || o.draft == text {
		o.mu.Unlock()
		return
	}
	o.draft = text
	o.redrawLocked(ctx)
	o.mu.Unlock()
}

func (o *Overlay) appendLocked(role domain.Role, text string) domain.Message {
	msg := domain.Message{Role: role, Text: strings.TrimSpace(text), At: o.now()}
	o.transcript = append(o.transcript, msg)
	return msg
}

func (o *Overlay) layerLocked() domain.Layer {
	l := domain.Layer{
		Name:     ModalLayer,
		Kind:     domain.LayerModal,
		Title:    o.settings.AgentName,
		Body:     o.policy.Sanitize(o.draft),
		Position: o.settings.ButtonPosition,
		Visible:  true,
	}
	msgs := o.transcript
	if !o.settings.ShowTranscript && len(msgs) > 0 {
		msgs = msgs[len(msgs)-1:]
	}
	for _, m := range msgs {
		m.Text = o.policy.Sanitize(m.Text)
		l.Messages = append(l.Messages, m)
	}
	return l
}

// redrawLocked draws the modal while o.mu is held, so a concurrent Close
// cannot be overtaken by a stale draw.
func (o *Overlay) redrawLocked(ctx context.Context) {
	if err := o.surface.Draw(context.WithoutCancel(ctx), o.layerLocked()); err != nil {
		o.logger.Debug("redraw conversation failed", "err", err)
	}
}

// plain strips markup so it is not read aloud.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(bluemonday.StrictPolicy().Sanitize(s)))
}
