package runtime_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/narrate/internal/runtime"
	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/capture"
	"github.com/aretw0/narrate/pkg/conversation"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/aretw0/narrate/pkg/speech"
	"github.com/aretw0/narrate/pkg/spotlight"
	"github.com/stretchr/testify/require"
)

// recordTracker keeps analytics events in memory, synchronously.
type recordTracker struct {
	mu      sync.Mutex
	session string
	events  []domain.AnalyticsEvent
}

func (r *recordTracker) Track(typ domain.EventType, tourID, stepID string, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, domain.AnalyticsEvent{Type: typ, TourID: tourID, StepID: stepID, SessionID: r.session, Metadata: meta})
}

func (r *recordTracker) SessionID() string { return r.session }

func (r *recordTracker) count(typ domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recordTracker) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recordTracker) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// locatorFunc adapts a function to runtime.Locator and counts calls.
type locatorFunc struct {
	mu    sync.Mutex
	calls int
	fn    func(req domain.LocateRequest) domain.ElementLocation
}

func (l *locatorFunc) Locate(_ context.Context, req domain.LocateRequest) domain.ElementLocation {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.fn(req)
}

func (l *locatorFunc) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type answererFunc func(ctx context.Context, q conversation.Question) (conversation.Answer, error)

func (f answererFunc) Ask(ctx context.Context, q conversation.Question) (conversation.Answer, error) {
	return f(ctx, q)
}

type harnessConfig struct {
	tours     []domain.TourDefinition
	narration time.Duration
	vision    runtime.Locator
	answerer  conversation.Answerer
	confirmer ports.Confirmer
	opts      []runtime.Option
}

type harness struct {
	surface *memory.Surface
	player  *memory.Player
	synth   *speech.Synthesizer
	spot    *spotlight.Presenter
	overlay *conversation.Overlay
	tracker *recordTracker
	engine  *runtime.Engine

	mu      sync.Mutex
	located []domain.LocateEvent
	entered []string
	left    []string
}

func newHarness(t *testing.T, cfg harnessConfig) *harness {
	t.Helper()
	if len(cfg.tours) == 0 {
		cfg.tours = []domain.TourDefinition{twoPageTour()}
	}
	if cfg.narration == 0 {
		cfg.narration = 5 * time.Millisecond
	}
	if cfg.answerer == nil {
		cfg.answerer = answererFunc(func(context.Context, conversation.Question) (conversation.Answer, error) {
			return conversation.Answer{Answer: "Sure."}, nil
		})
	}

	h := &harness{
		surface: page(),
		player:  memory.NewPlayer(cfg.narration),
		tracker: &recordTracker{session: "session-1"},
	}
	loader, err := memory.NewLoader(cfg.tours...)
	require.NoError(t, err)

	h.synth = speech.NewSynthesizer(nil, h.player, speech.Voice{ID: "aria", Language: "en"}, speech.WithNative(h.player))
	h.spot = spotlight.New(h.surface, spotlight.WithSettleDelay(time.Millisecond))
	h.overlay = conversation.New(h.surface, cfg.answerer, conversation.Settings{ShowTranscript: true},
		conversation.WithSpeaker(h.synth))

	hooks := domain.LifecycleHooks{
		OnLocate: func(_ context.Context, ev *domain.LocateEvent) {
			h.mu.Lock()
			h.located = append(h.located, *ev)
			h.mu.Unlock()
		},
		OnStepEnter: func(_ context.Context, ev *domain.StepEvent) {
			h.mu.Lock()
			h.entered = append(h.entered, ev.StepID)
			h.mu.Unlock()
		},
		OnStepLeave: func(_ context.Context, ev *domain.StepEvent) {
			h.mu.Lock()
			h.left = append(h.left, ev.StepID)
			h.mu.Unlock()
		},
	}

	opts := append([]runtime.Option{
		runtime.WithStepDelay(5 * time.Millisecond),
		runtime.WithPollInterval(10 * time.Millisecond),
		runtime.WithLifecycleHooks(hooks),
	}, cfg.opts...)

	h.engine, err = runtime.NewEngine(runtime.Deps{
		Tours:        loader,
		Surface:      h.surface,
		Narrator:     h.synth,
		Spotlight:    h.spot,
		Capturer:     capture.New(h.surface),
		Vision:       cfg.vision,
		Conversation: h.overlay,
		Analytics:    h.tracker,
		Confirmer:    cfg.confirmer,
	}, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, h.engine.Destroy(ctx))
	})
	return h
}

func (h *harness) locations() []domain.LocateEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.LocateEvent(nil), h.located...)
}

func (h *harness) steps() (entered, left []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entered...), append([]string(nil), h.left...)
}

func (h *harness) spokenCount(text string) int {
	n := 0
	for _, s := range h.player.Spoken() {
		if s == text {
			n++
		}
	}
	return n
}

func page() *memory.Surface {
	s := memory.NewSurface()
	s.Add("#logo", domain.ElementInfo{Bounds: domain.Rect{X: 20, Y: 20, Width: 120, Height: 40}})
	s.Add("#search", domain.ElementInfo{Bounds: domain.Rect{X: 200, Y: 20, Width: 300, Height: 32}})
	s.Add("#save", domain.ElementInfo{Bounds: domain.Rect{X: 40, Y: 400, Width: 90, Height: 30}})
	return s
}

func twoPageTour() domain.TourDefinition {
	return domain.TourDefinition{
		ID:   "onboarding",
		Name: "Onboarding",
		Pages: []domain.Page{
			{
				ID:    "home",
				Title: "Home",
				Steps: []domain.Step{
					{ID: "welcome", Title: "Welcome", Selector: "#logo", Element: "the company logo", Narration: "Welcome aboard"},
					{ID: "search", Title: "Search", Selector: "#search", Element: "the search box", Narration: "Search here"},
				},
			},
			{
				ID:    "settings",
				Title: "Settings",
				Steps: []domain.Step{
					{ID: "save", Title: "Save", Selector: "#save", Element: "the save button", Narration: "Save your changes"},
				},
			},
		},
	}
}

func singleStepTour(step domain.Step) domain.TourDefinition {
	return domain.TourDefinition{
		ID:    "single",
		Pages: []domain.Page{{ID: "p", Title: "Page", Steps: []domain.Step{step}}},
	}
}
