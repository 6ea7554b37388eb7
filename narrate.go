package narrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/internal/runtime"
	"github.com/aretw0/narrate/pkg/adapters/file"
	"github.com/aretw0/narrate/pkg/adapters/loam"
	"github.com/aretw0/narrate/pkg/analytics"
	"github.com/aretw0/narrate/pkg/capture"
	"github.com/aretw0/narrate/pkg/config"
	"github.com/aretw0/narrate/pkg/conversation"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/hover"
	"github.com/aretw0/narrate/pkg/observability"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/aretw0/narrate/pkg/spotlight"
	"github.com/aretw0/narrate/pkg/vision"
)

// Widget is a tour widget bound to one Surface. It owns every component it
// creates; Destroy releases them.
type Widget struct {
	cfg     config.Config
	logger  *slog.Logger
	surface ports.Surface

	engine     *runtime.Engine
	synth      *speech.Synthesizer
	spot       *spotlight.Presenter
	overlay    *conversation.Overlay
	explorer   *hover.Explorer
	recognizer *speech.Recognizer
	tracker    *analytics.Tracker
	loader     ports.TourLoader

	subs []ports.Subscription
}

// Option defines a functional option for configuring the Widget.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	loader     ports.TourLoader
	cache      ports.AudioCache
	player     ports.AudioPlayer
	native     ports.NativeSpeaker
	engine     ports.SpeechEngine
	sinks      []ports.AnalyticsSink
	knowledge  ports.KnowledgeBase
	confirmer  ports.Confirmer
	hooks      domain.LifecycleHooks
	httpClient *http.Client
	metrics    *observability.Metrics
	remote     speech.Remote
	answerer   conversation.Answerer
	locator    Locator
}

// Locator resolves an element description to a selector. It is satisfied by
// *vision.Client.
type Locator interface {
	Locate(ctx context.Context, req domain.LocateRequest) domain.ElementLocation
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTourLoader injects a tour source, bypassing the configured files or Loam repository.
func WithTourLoader(l ports.TourLoader) Option {
	return func(o *options) { o.loader = l }
}

// WithAudioCache memoizes synthesized narration, e.g. in Redis.
func WithAudioCache(c ports.AudioCache) Option {
	return func(o *options) { o.cache = c }
}

// WithAudioPlayer sets where synthesized clips are played. Surfaces that can
// play audio themselves are used when this is not set.
func WithAudioPlayer(p ports.AudioPlayer) Option {
	return func(o *options) { o.player = p }
}

// WithNativeSpeaker sets the platform speech used when remote synthesis fails.
func WithNativeSpeaker(n ports.NativeSpeaker) Option {
	return func(o *options) { o.native = n }
}

// WithSpeechEngine enables voice questions.
func WithSpeechEngine(e ports.SpeechEngine) Option {
	return func(o *options) { o.engine = e }
}

// WithAnalyticsSink adds a destination for analytics events.
func WithAnalyticsSink(s ports.AnalyticsSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithKnowledgeBase grounds conversation answers in extra context.
func WithKnowledgeBase(kb ports.KnowledgeBase) Option {
	return func(o *options) { o.knowledge = kb }
}

// WithConfirmer sets how exit confirmation is asked.
func WithConfirmer(c ports.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) { o.hooks = hooks }
}

// WithHTTPClient sets the client used for the AI services.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMetrics records tour activity in Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSpeechRemote replaces the HTTP synthesis service.
func WithSpeechRemote(r speech.Remote) Option {
	return func(o *options) { o.remote = r }
}

// WithAnswerer replaces the HTTP question-answering service.
func WithAnswerer(a conversation.Answerer) Option {
	return func(o *options) { o.answerer = a }
}

// WithLocator replaces the HTTP vision service.
func WithLocator(l Locator) Option {
	return func(o *options) { o.locator = l }
}

// New builds a widget on surface from cfg. When cfg.AutoStart is set the
// configured tour starts immediately.
func New(cfg config.Config, surface ports.Surface, opts ...Option) (*Widget, error) {
	if surface == nil {
		return nil, errors.New("surface is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timing.HTTPTimeout}
	}

	w := &Widget{cfg: cfg, logger: o.logger, surface: surface}

	loader, err := tourLoader(cfg, o)
	if err != nil {
		return nil, err
	}
	w.loader = loader

	w.synth, err = w.newSynthesizer(o)
	if err != nil {
		return nil, err
	}

	w.spot = spotlight.New(surface,
		spotlight.WithSettleDelay(cfg.Timing.SettleDelay),
		spotlight.WithColors(cfg.Theme.Highlight, cfg.Theme.Overlay),
		spotlight.WithCaptions(captionPosition(cfg.Captions)),
		spotlight.WithLogger(o.logger),
	)

	capturer := capture.New(surface,
		capture.WithBudget(cfg.Conversation.Vision.MaxImageSize),
		capture.WithMarker(cfg.Hover.MarkerAttribute),
		capture.WithLogger(o.logger),
	)

	var locator runtime.Locator
	switch {
	case !cfg.VisionNavigation.Enabled:
	case o.locator != nil:
		locator = o.locator
	case cfg.Endpoint != "":
		locator = vision.New(cfg.Endpoint, cfg.APIKey, vision.WithHTTPClient(o.httpClient), vision.WithLogger(o.logger))
	}

	if cfg.Analytics.Enabled {
		sink, err := w.analyticsSink(o)
		if err != nil {
			return nil, err
		}
		w.tracker = analytics.NewTracker(sink,
			analytics.WithQueueSize(cfg.Analytics.QueueSize),
			analytics.WithLogger(o.logger),
		)
	}

	if o.engine != nil {
		w.recognizer = speech.NewRecognizer(o.engine, cfg.Language, o.logger)
	}

	if cfg.Conversation.Enabled {
		w.overlay = w.newOverlay(o, capturer)
	}

	if cfg.Hover.Enabled {
		hoverOpts := []hover.Option{
			hover.WithMarker(cfg.Hover.MarkerAttribute),
			hover.WithSelectors(cfg.Hover.Selectors...),
			hover.WithTriggerDelay(cfg.Hover.TriggerDelay),
			hover.WithLogger(o.logger),
		}
		if cfg.Hover.SpeakOnHover {
			hoverOpts = append(hoverOpts, hover.WithSpeaker(idleSpeaker{w}))
		}
		w.explorer = hover.New(surface, hoverOpts...)
	}

	if err := w.newEngine(o, capturer, locator); err != nil {
		return nil, err
	}

	w.subs = append(w.subs, w.engine.Attach(), w.spot.Track())

	ctx := context.Background()
	if w.explorer != nil {
		if err := w.explorer.Activate(ctx); err != nil {
			o.logger.Warn("hover explore unavailable", "err", err)
		}
	}
	if cfg.AutoStart {
		if err := w.engine.Start(ctx, cfg.StartTour); err != nil {
			o.logger.Warn("auto start failed", "err", err)
		}
	}
	return w, nil
}

func tourLoader(cfg config.Config, o *options) (ports.TourLoader, error) {
	if o.loader != nil {
		return o.loader, nil
	}
	switch cfg.Tours.Source {
	case "loam":
		l, err := loam.Open(cfg.Tours.Path)
		if err != nil {
			return nil, fmt.Errorf("open tour repository: %w", err)
		}
		return l, nil
	default:
		l, err := file.NewLoader(cfg.Tours.Path, file.WithLogger(o.logger))
		if err != nil {
			return nil, fmt.Errorf("load tours: %w", err)
		}
		return l, nil
	}
}

func (w *Widget) newSynthesizer(o *options) (*speech.Synthesizer, error) {
	player := o.player
	if player == nil {
		p, ok := w.surface.(ports.AudioPlayer)
		if !ok {
			return nil, errors.New("an audio player is required: use WithAudioPlayer")
		}
		player = p
	}
	native := o.native
	if native == nil {
		if n, ok := w.surface.(ports.NativeSpeaker); ok {
			native = n
		}
	}

	remote := o.remote
	if remote == nil && w.cfg.Endpoint != "" {
		remote = speech.NewHTTPRemote(w.cfg.Endpoint, w.cfg.APIKey, o.httpClient)
	}

	synthOpts := []speech.Option{
		speech.WithLogger(o.logger),
		speech.WithSpeedLocked(!w.cfg.Speech.AllowChange),
	}
	if native != nil {
		synthOpts = append(synthOpts, speech.WithNative(native))
	}
	switch {
	case w.cfg.Cache.Backend == "none":
		synthOpts = append(synthOpts, speech.WithCache(noCache{}))
	case o.cache != nil:
		synthOpts = append(synthOpts, speech.WithCache(o.cache))
	}
	if o.metrics != nil {
		synthOpts = append(synthOpts, speech.WithCacheHook(o.metrics.ObserveCache))
	}

	voice := speech.Voice{ID: w.cfg.Speech.Voice, Speed: w.cfg.Speech.Speed, Language: w.cfg.Language}
	return speech.NewSynthesizer(remote, player, voice, synthOpts...), nil
}

func (w *Widget) analyticsSink(o *options) (ports.AnalyticsSink, error) {
	sinks := analytics.Multi{}
	if w.cfg.Analytics.Endpoint != "" {
		sinks = append(sinks, analytics.NewHTTPSink(w.cfg.Analytics.Endpoint, w.cfg.APIKey))
	}
	if o.metrics != nil {
		sinks = append(sinks, o.metrics)
	}
	sinks = append(sinks, o.sinks...)
	if len(w.cfg.Analytics.Redact) == 0 {
		return sinks, nil
	}
	redact, err := analytics.Redact(w.cfg.Analytics.Redact...)
	if err != nil {
		return nil, err
	}
	return redact(sinks), nil
}

func (w *Widget) newOverlay(o *options, capturer *capture.Capturer) *conversation.Overlay {
	c := w.cfg.Conversation
	answerer := o.answerer
	if answerer == nil {
		answerer = conversation.NewHTTPAnswerer(w.cfg.Endpoint, w.cfg.APIKey, o.httpClient)
	}

	overlayOpts := []conversation.Option{
		conversation.WithSpeaker(w.synth),
		conversation.WithLogger(o.logger),
	}
	if c.Vision.Enabled {
		overlayOpts = append(overlayOpts, conversation.WithCapturer(capturer))
	}
	if w.recognizer != nil {
		overlayOpts = append(overlayOpts, conversation.WithRecognizer(w.recognizer))
	}
	switch {
	case o.knowledge != nil:
		overlayOpts = append(overlayOpts, conversation.WithKnowledge(o.knowledge))
	case w.cfg.Knowledge.Provider == "page":
		overlayOpts = append(overlayOpts, conversation.WithKnowledge(
			conversation.NewPageKnowledge(w.surface, w.cfg.Knowledge.Selector, w.cfg.Knowledge.Limit)))
	}

	return conversation.New(w.surface, answerer, conversation.Settings{
		AgentName:       c.AgentName,
		Personality:     c.Personality,
		Greeting:        c.Greeting,
		ButtonLabel:     c.ButtonLabel,
		ButtonPosition:  c.ButtonPosition,
		ShowTranscript:  c.ShowTranscript,
		TextFallback:    c.TextFallback,
		NoTrigger:       !w.cfg.ShowTrigger,
		Vision:          c.Vision.Enabled,
		CaptureMode:     c.Vision.CaptureMode,
		IncludeSnapshot: c.Vision.IncludeSnapshot,

		MaxQuestionLength: c.MaxQuestionLength,
	}, overlayOpts...)
}

func (w *Widget) newEngine(o *options, capturer *capture.Capturer, locator runtime.Locator) error {
	bindings, err := runtime.ParseBindings(w.cfg.Keyboard.Bindings)
	if err != nil {
		return fmt.Errorf("keyboard bindings: %w", err)
	}

	hooks := []domain.LifecycleHooks{observability.LogHooks(o.logger), o.hooks}
	if o.metrics != nil {
		hooks = append(hooks, o.metrics.Hooks())
	}

	engineOpts := []runtime.Option{
		runtime.WithLogger(o.logger),
		runtime.WithLifecycleHooks(observability.Chain(hooks...)),
		runtime.WithStepDelay(w.cfg.Timing.StepDelay),
		runtime.WithWaitTimeout(w.cfg.Timing.WaitTimeout),
		runtime.WithVisionFallback(w.cfg.VisionNavigation.FallbackToHint),
		runtime.WithLocationLogging(w.cfg.VisionNavigation.Logging),
		runtime.WithKeyboard(w.cfg.Keyboard.Enabled, bindings),
	}
	if w.cfg.ExitConfirmation.Enabled {
		engineOpts = append(engineOpts, runtime.WithExitConfirmation(w.cfg.ExitConfirmation.Message))
	}

	deps := runtime.Deps{
		Tours:     w.loader,
		Surface:   w.surface,
		Narrator:  w.synth,
		Spotlight: w.spot,
		Capturer:  capturer,
		Vision:    locator,
		Confirmer: o.confirmer,
	}
	if deps.Confirmer == nil {
		if c, ok := w.surface.(ports.Confirmer); ok {
			deps.Confirmer = c
		}
	}
	// Interface fields stay nil, not typed-nil, for disabled components.
	if w.overlay != nil {
		deps.Conversation = w.overlay
	}
	if w.tracker != nil {
		deps.Analytics = w.tracker
	}

	w.engine, err = runtime.NewEngine(deps, engineOpts...)
	return err
}

func captionPosition(c config.Captions) string {
	if !c.Enabled {
		return ""
	}
	if c.Position == "" {
		return "bottom"
	}
	return c.Position
}

type noCache struct{}

func (noCache) Get(context.Context, string) (domain.AudioClip, bool, error) {
	return domain.AudioClip{}, false, nil
}
func (noCache) Put(context.Context, string, domain.AudioClip) error { return nil }

// idleSpeaker speaks hover explanations only while no tour is running, so
// they never talk over narration.
type idleSpeaker struct{ w *Widget }

func (s idleSpeaker) Speak(ctx context.Context, text string) error {
	if s.w.engine.State() != domain.StateIdle {
		return nil
	}
	return s.w.synth.Speak(ctx, text)
}

// Start plays the tour with the given id, or the first tour when id is empty.
// A missing tour is logged and leaves the widget idle.
func (w *Widget) Start(ctx context.Context, tourID string) error {
	return w.engine.Start(ctx, tourID)
}

// StartStrict is Start, but reports a missing tour as domain.ErrTourNotFound.
func (w *Widget) StartStrict(ctx context.Context, tourID string) error {
	return w.engine.StartStrict(ctx, tourID)
}

func (w *Widget) Pause(ctx context.Context)    { w.engine.Pause(ctx) }
func (w *Widget) Resume(ctx context.Context)   { w.engine.Resume(ctx) }
func (w *Widget) Next(ctx context.Context)     { w.engine.Next(ctx) }
func (w *Widget) Previous(ctx context.Context) { w.engine.Previous(ctx) }

// GoTo jumps to the step at index of the running tour.
func (w *Widget) GoTo(ctx context.Context, index int) error { return w.engine.GoTo(ctx, index) }

// Restart replays the current tour from the first step in the same session.
func (w *Widget) Restart(ctx context.Context) error { return w.engine.Restart(ctx) }

// Stop ends the tour, after the exit confirmation when it is enabled.
func (w *Widget) Stop(ctx context.Context) error { return w.engine.Stop(ctx) }

// OpenConversation opens the question modal, parking a running tour.
func (w *Widget) OpenConversation(ctx context.Context) error { return w.engine.OpenConversation(ctx) }

// CloseConversation closes the modal and lets the tour continue.
func (w *Widget) CloseConversation(ctx context.Context) error { return w.engine.CloseConversation(ctx) }

// Ask submits a typed question to the open conversation.
func (w *Widget) Ask(ctx context.Context, question string) error { return w.engine.Ask(ctx, question) }

// Listen starts a voice question in the open conversation.
func (w *Widget) Listen(ctx context.Context) error { return w.engine.Listen(ctx) }

// HandleKey runs the command bound to key and reports whether it was consumed.
func (w *Widget) HandleKey(ctx context.Context, key string) bool { return w.engine.HandleKey(ctx, key) }

// Run executes a named command such as "next" or "pause".
func (w *Widget) Run(ctx context.Context, cmd string) error {
	return w.engine.Run(ctx, runtime.Command(cmd))
}

// SetSpeed changes the narration speed, unless the configuration locks it.
func (w *Widget) SetSpeed(v float64) error { return w.synth.SetSpeed(v) }

// State returns the playback state.
func (w *Widget) State() domain.PlaybackState { return w.engine.State() }

// Context returns the tour context of the current step.
func (w *Widget) Context() domain.TourContext { return w.engine.Context() }

// Index returns the current step index.
func (w *Widget) Index() int { return w.engine.Index() }

// SessionID returns the analytics session id, or "" when analytics are disabled.
func (w *Widget) SessionID() string { return w.engine.SessionID() }

// Tours lists the available tours.
func (w *Widget) Tours(ctx context.Context) ([]domain.TourDefinition, error) {
	return w.loader.Tours(ctx)
}

// Transcript returns the messages of the open conversation.
func (w *Widget) Transcript() []domain.Message {
	if w.overlay == nil {
		return nil
	}
	return w.overlay.Transcript()
}

// SetHoverExplore turns hover explanations on or off.
func (w *Widget) SetHoverExplore(ctx context.Context, on bool) error {
	if w.explorer == nil {
		return fmt.Errorf("hover explore: %w", domain.ErrUnsupported)
	}
	if on {
		return w.explorer.Activate(ctx)
	}
	return w.explorer.Deactivate(ctx)
}

// Watch signals tour source changes. A running tour keeps its definition until
// it is started again.
func (w *Widget) Watch(ctx context.Context) (<-chan struct{}, error) {
	if wl, ok := w.loader.(ports.Watchable); ok {
		return wl.Watch(ctx)
	}
	return nil, fmt.Errorf("current loader does not support watching")
}

// Destroy stops the tour, removes every layer and subscription, and drains
// pending analytics. The widget cannot be used afterwards.
func (w *Widget) Destroy(ctx context.Context) error {
	var errs []error
	if w.explorer != nil {
		if err := w.explorer.Deactivate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("hover: %w", err))
		}
	}
	for _, sub := range w.subs {
		sub.Cancel()
	}
	w.subs = nil

	if err := w.engine.Destroy(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	w.synth.Stop()
	if w.recognizer != nil {
		w.recognizer.Abort()
	}
	if w.tracker != nil {
		if err := w.tracker.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("analytics: %w", err))
		}
	}
	return errors.Join(errs...)
}
