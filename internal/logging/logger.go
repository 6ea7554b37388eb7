package logging

import (
	"io"
	"log/slog"
	"os"
)

// Component tags every record so widget lines stand apart from the host's.
const Component = "narrate"

// Format selects how records are encoded.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New creates the widget logger. It writes to Stderr so the runner keeps
// Stdout for the tour.
func New(level slog.Level, format Format) *slog.Logger {
	return NewWriter(os.Stderr, level, format)
}

// NewWriter creates a logger writing to w. Records carry component=narrate
// and "error" keys are shortened to "err".
func NewWriter(w io.Writer, level slog.Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("component", Component)
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
