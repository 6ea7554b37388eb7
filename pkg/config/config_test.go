package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "data-narrate-explain", cfg.Hover.MarkerAttribute)
	assert.Equal(t, 5*time.Second, cfg.Timing.WaitTimeout)
	assert.Equal(t, time.Second, cfg.Timing.StepDelay)
	assert.True(t, cfg.VisionNavigation.FallbackToHint)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"speed", func(c *config.Config) { c.Speech.Speed = 0 }, "speech.speed"},
		{"capture mode", func(c *config.Config) { c.Conversation.Vision.CaptureMode = "window" }, "captureMode"},
		{"redis without addr", func(c *config.Config) { c.Cache.Backend = "redis" }, "cache.redisAddr"},
		{"unknown tours source", func(c *config.Config) { c.Tours.Source = "s3" }, "tours.source"},
		{"deepgram without key", func(c *config.Config) { c.Recognition.Provider = "deepgram" }, "recognition.apiKey"},
		{"log level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"collector driver", func(c *config.Config) { c.Collector.Driver = "mysql" }, "collector.driver"},
		{"redact pattern", func(c *config.Config) { c.Analytics.Redact = []string{"("} }, "analytics.redact"},
		{"pinecone without host", func(c *config.Config) { c.Knowledge.Provider = "pinecone" }, "knowledge.apiKey"},
		{"negative question length", func(c *config.Config) { c.Conversation.MaxQuestionLength = -1 }, "conversation.maxQuestionLength"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), normalize(cfg))
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "narrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: https://ai.example.com
language: pt
conversation:
  agentName: Ada
  vision:
    captureMode: element
hover:
  enabled: true
  triggerDelay: 800ms
keyboard:
  bindings:
    Space: toggle
`), 0o644))
	t.Setenv("NARRATE_SPEECH_SPEED", "1.5")
	t.Setenv("NARRATE_HOVER_SELECTORS", ".help,.tip")
	t.Setenv("NARRATE_TIMING_WAITTIMEOUT", "2s")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ai.example.com", cfg.Endpoint)
	assert.Equal(t, "pt", cfg.Language)
	assert.Equal(t, "Ada", cfg.Conversation.AgentName)
	assert.Equal(t, "element", cfg.Conversation.Vision.CaptureMode)
	assert.True(t, cfg.Conversation.Vision.Enabled, "untouched keys keep their defaults")
	assert.Equal(t, 800*time.Millisecond, cfg.Hover.TriggerDelay)
	assert.Equal(t, []string{".help", ".tip"}, cfg.Hover.Selectors)
	assert.Equal(t, 1.5, cfg.Speech.Speed)
	assert.Equal(t, 2*time.Second, cfg.Timing.WaitTimeout)
	assert.Equal(t, "toggle", cfg.Keyboard.Bindings["space"])
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NARRATE_APIKEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("NARRATE_APIKEY") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("speech:\n  speed: -1\n"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speech.speed")

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "narrate.yaml")

	want := config.Default()
	want.Conversation.AgentName = "Ada"
	require.NoError(t, config.Write(path, want))

	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, normalize(got))
}

// normalize maps the empty collections produced by decoding back to nil.
func normalize(c config.Config) config.Config {
	if len(c.Keyboard.Bindings) == 0 {
		c.Keyboard.Bindings = nil
	}
	if len(c.Hover.Selectors) == 0 {
		c.Hover.Selectors = nil
	}
	if len(c.Analytics.Elastic) == 0 {
		c.Analytics.Elastic = nil
	}
	if len(c.Analytics.Redact) == 0 {
		c.Analytics.Redact = nil
	}
	if len(c.Recognition.Command) == 0 {
		c.Recognition.Command = nil
	}
	return c
}
