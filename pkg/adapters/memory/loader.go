package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/narrate/pkg/domain"
)

// Loader implements ports.TourLoader over tours held in memory.
type Loader struct {
	tours []domain.TourDefinition
}

// NewLoader creates a Loader from domain objects, keeping their order.
func NewLoader(tours ...domain.TourDefinition) (*Loader, error) {
	seen := make(map[string]bool, len(tours))
	for _, t := range tours {
		if t.ID == "" {
			return nil, fmt.Errorf("tour missing ID")
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("duplicate tour ID: %s", t.ID)
		}
		seen[t.ID] = true
	}
	return &Loader{tours: tours}, nil
}

// Tours returns all tours in registration order.
func (l *Loader) Tours(_ context.Context) ([]domain.TourDefinition, error) {
	out := make([]domain.TourDefinition, len(l.tours))
	copy(out, l.tours)
	return out, nil
}

// Tour retrieves a tour by ID.
func (l *Loader) Tour(_ context.Context, id string) (domain.TourDefinition, error) {
	for _, t := range l.tours {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.TourDefinition{}, fmt.Errorf("%w: %s", domain.ErrTourNotFound, id)
}
