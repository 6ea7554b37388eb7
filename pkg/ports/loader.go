package ports

import (
	"context"

	"github.com/aretw0/narrate/pkg/domain"
)

// TourLoader defines how tours are retrieved.
// This allows the source (files, Loam, memory) to be decoupled.
type TourLoader interface {
	// Tours returns every available tour, in a stable order.
	Tours(ctx context.Context) ([]domain.TourDefinition, error)

	// Tour returns one tour by id, or domain.ErrTourNotFound.
	Tour(ctx context.Context, id string) (domain.TourDefinition, error)
}

// Watchable defines an interface for loaders that can notify about backend changes.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
