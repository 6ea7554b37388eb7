package analytics

import (
	"context"
	"errors"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Func adapts a function to a sink.
type Func func(ctx context.Context, ev domain.AnalyticsEvent) error

// Emit implements ports.AnalyticsSink.
func (f Func) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard ports.AnalyticsSink = Func(func(context.Context, domain.AnalyticsEvent) error { return nil })

// Multi fans an event out to every sink. One failing sink does not stop the others.
type Multi []ports.AnalyticsSink

// Emit implements ports.AnalyticsSink.
func (m Multi) Emit(ctx context.Context, ev domain.AnalyticsEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
