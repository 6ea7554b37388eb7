package ports

import (
	"context"

	"github.com/aretw0/narrate/pkg/domain"
)

// AnalyticsSink receives analytics events. Delivery is best effort;
// callers log returned errors and never retry.
type AnalyticsSink interface {
	Emit(ctx context.Context, event domain.AnalyticsEvent) error
}

// KnowledgeBase supplies grounding text for a conversation question.
type KnowledgeBase interface {
	Lookup(ctx context.Context, question string) (string, error)
}
