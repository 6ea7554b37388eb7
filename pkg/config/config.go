// Package config holds the widget configuration and its defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Config is the full widget configuration. Every field is optional.
type Config struct {
	// Endpoint is the base URL of the AI services (vision, speech, conversation).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey   string `mapstructure:"apiKey" yaml:"apiKey"`

	Theme       Theme    `mapstructure:"theme" yaml:"theme"`
	Language    string   `mapstructure:"language" yaml:"language"`
	Captions    Captions `mapstructure:"captions" yaml:"captions"`
	AutoStart   bool     `mapstructure:"autoStart" yaml:"autoStart"`
	StartTour   string   `mapstructure:"startTour" yaml:"startTour"`
	ShowTrigger bool     `mapstructure:"showTrigger" yaml:"showTrigger"`

	Speech           Speech           `mapstructure:"speech" yaml:"speech"`
	Conversation     Conversation     `mapstructure:"conversation" yaml:"conversation"`
	Hover            Hover            `mapstructure:"hover" yaml:"hover"`
	Keyboard         Keyboard         `mapstructure:"keyboard" yaml:"keyboard"`
	ExitConfirmation ExitConfirmation `mapstructure:"exitConfirmation" yaml:"exitConfirmation"`
	VisionNavigation VisionNavigation `mapstructure:"visionNavigation" yaml:"visionNavigation"`

	Timing      Timing      `mapstructure:"timing" yaml:"timing"`
	Tours       Tours       `mapstructure:"tours" yaml:"tours"`
	Cache       Cache       `mapstructure:"cache" yaml:"cache"`
	Analytics   Analytics   `mapstructure:"analytics" yaml:"analytics"`
	Browser     Browser     `mapstructure:"browser" yaml:"browser"`
	Recognition Recognition `mapstructure:"recognition" yaml:"recognition"`
	Knowledge   Knowledge   `mapstructure:"knowledge" yaml:"knowledge"`
	Collector   Collector   `mapstructure:"collector" yaml:"collector"`
	Log         Log         `mapstructure:"log" yaml:"log"`
}

type Theme struct {
	Highlight string `mapstructure:"highlight" yaml:"highlight"`
	Overlay   string `mapstructure:"overlay" yaml:"overlay"`
}

type Captions struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Position string `mapstructure:"position" yaml:"position"`
}

type Speech struct {
	Voice       string  `mapstructure:"voice" yaml:"voice"`
	Speed       float64 `mapstructure:"speed" yaml:"speed"`
	AllowChange bool    `mapstructure:"allowSpeedChange" yaml:"allowSpeedChange"`
}

type Conversation struct {
	Enabled        bool               `mapstructure:"enabled" yaml:"enabled"`
	ButtonLabel    string             `mapstructure:"buttonLabel" yaml:"buttonLabel"`
	ButtonPosition string             `mapstructure:"buttonPosition" yaml:"buttonPosition"`
	AgentName      string             `mapstructure:"agentName" yaml:"agentName"`
	Personality    string             `mapstructure:"personality" yaml:"personality"`
	Greeting       string             `mapstructure:"greeting" yaml:"greeting"`
	ShowTranscript bool               `mapstructure:"showTranscript" yaml:"showTranscript"`
	TextFallback   bool               `mapstructure:"textFallback" yaml:"textFallback"`
	Vision         ConversationVision `mapstructure:"vision" yaml:"vision"`

	// MaxQuestionLength bounds a question in characters.
	MaxQuestionLength int `mapstructure:"maxQuestionLength" yaml:"maxQuestionLength"`
}

type ConversationVision struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	CaptureMode     string `mapstructure:"captureMode" yaml:"captureMode"`
	IncludeSnapshot bool   `mapstructure:"includeSnapshot" yaml:"includeSnapshot"`
	// MaxImageSize is the encoded screenshot budget in bytes.
	MaxImageSize int `mapstructure:"maxImageSize" yaml:"maxImageSize"`
}

type Hover struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MarkerAttribute string        `mapstructure:"markerAttribute" yaml:"markerAttribute"`
	TriggerDelay    time.Duration `mapstructure:"triggerDelay" yaml:"triggerDelay"`
	SpeakOnHover    bool          `mapstructure:"speakOnHover" yaml:"speakOnHover"`
	Selectors       []string      `mapstructure:"selectors" yaml:"selectors"`
}

type Keyboard struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Bindings maps keys to commands. Empty means the default bindings.
	Bindings map[string]string `mapstructure:"bindings" yaml:"bindings"`
}

type ExitConfirmation struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Message string `mapstructure:"message" yaml:"message"`
}

type VisionNavigation struct {
	Enabled        bool `mapstructure:"enabled" yaml:"enabled"`
	FallbackToHint bool `mapstructure:"fallbackToHint" yaml:"fallbackToHint"`
	Logging        bool `mapstructure:"logging" yaml:"logging"`
}

type Timing struct {
	StepDelay   time.Duration `mapstructure:"stepDelay" yaml:"stepDelay"`
	WaitTimeout time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout"`
	SettleDelay time.Duration `mapstructure:"settleDelay" yaml:"settleDelay"`
	HTTPTimeout time.Duration `mapstructure:"httpTimeout" yaml:"httpTimeout"`
}

// Tours selects where tour definitions come from.
type Tours struct {
	// Source is "file" (YAML/JSON files) or "loam" (a markdown repository).
	Source string `mapstructure:"source" yaml:"source"`
	Path   string `mapstructure:"path" yaml:"path"`
}

type Cache struct {
	// Backend is "memory", "redis" or "none".
	Backend   string        `mapstructure:"backend" yaml:"backend"`
	RedisAddr string        `mapstructure:"redisAddr" yaml:"redisAddr"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type Analytics struct {
	Enabled   bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint  string   `mapstructure:"endpoint" yaml:"endpoint"`
	QueueSize int      `mapstructure:"queueSize" yaml:"queueSize"`
	Metrics   bool     `mapstructure:"metrics" yaml:"metrics"`
	Stream    string   `mapstructure:"stream" yaml:"stream"`
	RedisAddr string   `mapstructure:"redisAddr" yaml:"redisAddr"`
	Elastic   []string `mapstructure:"elastic" yaml:"elastic"`
	Index     string   `mapstructure:"index" yaml:"index"`
	// Redact lists regular expressions; matching metadata keys are masked
	// before events leave the process.
	Redact []string `mapstructure:"redact" yaml:"redact"`
}

type Browser struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Bin      string `mapstructure:"bin" yaml:"bin"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	Stealth  bool   `mapstructure:"stealth" yaml:"stealth"`
	// Control is a DevTools websocket URL of a running browser to attach to.
	Control string `mapstructure:"control" yaml:"control"`
}

type Recognition struct {
	// Provider is "deepgram" or "none".
	Provider string `mapstructure:"provider" yaml:"provider"`
	APIKey   string `mapstructure:"apiKey" yaml:"apiKey"`
	Model    string `mapstructure:"model" yaml:"model"`
	// Recorder names a capture preset; Command overrides it with a full command line.
	Recorder string   `mapstructure:"recorder" yaml:"recorder"`
	Command  []string `mapstructure:"command" yaml:"command"`
}

type Knowledge struct {
	// Provider is "page", "pinecone" or "none".
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Selector  string `mapstructure:"selector" yaml:"selector"`
	Limit     int    `mapstructure:"limit" yaml:"limit"`
	APIKey    string `mapstructure:"apiKey" yaml:"apiKey"`
	Host      string `mapstructure:"host" yaml:"host"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	TopK      int    `mapstructure:"topK" yaml:"topK"`
	// Embedding endpoint used to vectorize questions for pinecone.
	EmbedURL    string `mapstructure:"embedUrl" yaml:"embedUrl"`
	EmbedModel  string `mapstructure:"embedModel" yaml:"embedModel"`
	EmbedAPIKey string `mapstructure:"embedApiKey" yaml:"embedApiKey"`
}

// Collector configures the analytics collector service.
type Collector struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Addr   string `mapstructure:"addr" yaml:"addr"`
}

type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Theme:       Theme{Highlight: "#4f46e5", Overlay: "rgba(0,0,0,0.5)"},
		Language:    "en",
		Captions:    Captions{Enabled: true, Position: "bottom"},
		ShowTrigger: true,
		Speech:      Speech{Voice: "default", Speed: 1.0, AllowChange: true},
		Conversation: Conversation{
			Enabled:        true,
			ButtonPosition: "bottom-right",
			AgentName:      "Guide",
			Personality:    "friendly and concise",
			ShowTranscript: true,
			TextFallback:   true,
			Vision: ConversationVision{
				Enabled:      true,
				CaptureMode:  "viewport",
				MaxImageSize: 500 * 1024,
			},
			MaxQuestionLength: 500,
		},
		Hover: Hover{
			MarkerAttribute: "data-narrate-explain",
			TriggerDelay:    500 * time.Millisecond,
			SpeakOnHover:    true,
		},
		Keyboard:         Keyboard{Enabled: true},
		ExitConfirmation: ExitConfirmation{Message: "Are you sure you want to exit the tour?"},
		VisionNavigation: VisionNavigation{Enabled: true, FallbackToHint: true},
		Timing: Timing{
			StepDelay:   time.Second,
			WaitTimeout: 5 * time.Second,
			SettleDelay: 350 * time.Millisecond,
			HTTPTimeout: 15 * time.Second,
		},
		Tours:       Tours{Source: "file", Path: "tours"},
		Cache:       Cache{Backend: "memory", TTL: 24 * time.Hour},
		Analytics:   Analytics{Enabled: true, QueueSize: 256, Stream: "narrate:events", Index: "narrate-events"},
		Browser:     Browser{Headless: true},
		Recognition: Recognition{Provider: "none", Model: "nova-2", Recorder: "arecord"},
		Knowledge:   Knowledge{
			Provider:   "page",
			Selector:   "main",
			Limit:      8000,
			TopK:       3,
			EmbedURL:   "https://api.openai.com/v1/embeddings",
			EmbedModel: "text-embedding-ada-002",
		},
		Collector:   Collector{Driver: "sqlite", DSN: "narrate-events.db", Addr: ":8090"},
		Log:         Log{Level: "info", Format: "text"},
	}
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error
	if c.Speech.Speed <= 0 || c.Speech.Speed > 4 {
		errs = append(errs, fmt.Errorf("speech.speed %v out of range (0,4]", c.Speech.Speed))
	}
	if m := c.Conversation.Vision.CaptureMode; m != "viewport" && m != "element" {
		errs = append(errs, fmt.Errorf("conversation.vision.captureMode %q: want viewport or element", m))
	}
	if c.Conversation.Vision.MaxImageSize <= 0 {
		errs = append(errs, errors.New("conversation.vision.maxImageSize must be positive"))
	}
	if c.Conversation.MaxQuestionLength < 0 {
		errs = append(errs, errors.New("conversation.maxQuestionLength must not be negative"))
	}
	if c.Hover.Enabled && c.Hover.MarkerAttribute == "" && len(c.Hover.Selectors) == 0 {
		errs = append(errs, errors.New("hover needs a markerAttribute or selectors"))
	}
	if c.Timing.StepDelay < 0 || c.Timing.WaitTimeout <= 0 {
		errs = append(errs, errors.New("timing: stepDelay must be >= 0 and waitTimeout > 0"))
	}
	errs = append(errs, oneOf("tours.source", c.Tours.Source, "file", "loam"))
	errs = append(errs, oneOf("cache.backend", c.Cache.Backend, "memory", "redis", "none"))
	errs = append(errs, oneOf("recognition.provider", c.Recognition.Provider, "deepgram", "none"))
	errs = append(errs, oneOf("knowledge.provider", c.Knowledge.Provider, "page", "pinecone", "none"))
	errs = append(errs, oneOf("collector.driver", c.Collector.Driver, "sqlite", "postgres"))
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redisAddr is required for the redis backend"))
	}
	if c.Recognition.Provider == "deepgram" && c.Recognition.APIKey == "" {
		errs = append(errs, errors.New("recognition.apiKey is required for deepgram"))
	}
	if c.Knowledge.Provider == "pinecone" && (c.Knowledge.APIKey == "" || c.Knowledge.Host == "") {
		errs = append(errs, errors.New("knowledge.apiKey and knowledge.host are required for pinecone"))
	}
	for _, p := range c.Analytics.Redact {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("analytics.redact %q: %w", p, err))
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := oneOf("log.format", c.Log.Format, "text", "json"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s %q: want one of %s", field, value, strings.Join(allowed, ", "))
}

// SlogLevel parses the configured log level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
