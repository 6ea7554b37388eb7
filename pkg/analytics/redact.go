package analytics

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Mask replaces redacted metadata values.
const Mask = "***"

// Middleware wraps a sink to add behavior.
type Middleware func(ports.AnalyticsSink) ports.AnalyticsSink

type redactSink struct {
	next     ports.AnalyticsSink
	patterns []*regexp.Regexp
}

// Redact returns a middleware that masks metadata values whose key matches
// any of the patterns, at any depth. The event passed to Emit is not modified.
func Redact(patterns ...string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.AnalyticsSink) ports.AnalyticsSink {
		return &redactSink{next: next, patterns: compiled}
	}, nil
}

func (s *redactSink) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	if len(ev.Metadata) > 0 {
		ev.Metadata = deepCopyMap(ev.Metadata)
		maskMap(ev.Metadata, s.patterns)
	}
	return s.next.Emit(ctx, ev)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
