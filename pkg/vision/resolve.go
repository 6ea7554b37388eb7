package vision

import "github.com/aretw0/narrate/pkg/domain"

// Sources of a resolved selector.
const (
	SourceVision = "vision"
	SourceHint   = "hint"
	SourceNone   = "none"
)

// Resolve applies the resolution policy to a vision lookup result: a found
// selector wins, then the hint when falling back is allowed, then nothing.
func Resolve(loc domain.ElementLocation, hint string, allowFallback bool) (selector, source string) {
	if loc.Found && loc.Selector != "" {
		return loc.Selector, SourceVision
	}
	if loc.FallbackToHint && allowFallback && hint != "" {
		return hint, SourceHint
	}
	return "", SourceNone
}

// Direct is the location used when vision is disabled: the hint, with no network call.
func Direct(hint string) domain.ElementLocation {
	return domain.ElementLocation{FallbackToHint: hint != "", Confidence: 0}
}

// ResolveDirect resolves a step without a vision lookup. The hint is used as
// is; the fallback policy only governs failed lookups.
func ResolveDirect(hint string) (selector, source string) {
	if hint == "" {
		return "", SourceNone
	}
	return hint, SourceHint
}
