package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/narrate/pkg/domain"
)

// LogHooks returns hooks that write every lifecycle event to logger at debug level.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step enter", "tour", e.TourID, "step", e.StepID, "index", e.Index)
		},
		OnStepLeave: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step leave", "tour", e.TourID, "step", e.StepID, "index", e.Index)
		},
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			logger.DebugContext(ctx, "state change", "from", e.From, "to", e.To)
		},
		OnLocate: func(ctx context.Context, e *domain.LocateEvent) {
			logger.DebugContext(ctx, "element located",
				"step", e.StepID,
				"source", e.Source,
				"selector", e.Resolved,
				"confidence", e.Location.Confidence,
			)
		},
	}
}

// Chain combines hook sets; each callback runs every non-nil callback in order.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		h := h
		if h.OnStepEnter != nil {
			prev := out.OnStepEnter
			out.OnStepEnter = func(ctx context.Context, e *domain.StepEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStepEnter(ctx, e)
			}
		}
		if h.OnStepLeave != nil {
			prev := out.OnStepLeave
			out.OnStepLeave = func(ctx context.Context, e *domain.StepEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStepLeave(ctx, e)
			}
		}
		if h.OnStateChange != nil {
			prev := out.OnStateChange
			out.OnStateChange = func(ctx context.Context, e *domain.StateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStateChange(ctx, e)
			}
		}
		if h.OnLocate != nil {
			prev := out.OnLocate
			out.OnLocate = func(ctx context.Context, e *domain.LocateEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnLocate(ctx, e)
			}
		}
	}
	return out
}
