package dsl

import (
	"fmt"

	"github.com/aretw0/narrate/internal/validator"
	"github.com/aretw0/narrate/pkg/adapters/memory"
	"github.com/aretw0/narrate/pkg/domain"
)

// Builder manages the construction of a set of tours.
type Builder struct {
	tours []*TourBuilder
}

// New creates a new tour builder.
func New() *Builder {
	return &Builder{}
}

// Tour starts a tour. If a tour with the id already exists, it returns the
// existing builder.
func (b *Builder) Tour(id string) *TourBuilder {
	for _, t := range b.tours {
		if t.id == id {
			return t
		}
	}
	t := &TourBuilder{id: id}
	b.tours = append(b.tours, t)
	return t
}

// Tours validates and returns the tours in declaration order.
func (b *Builder) Tours() ([]domain.TourDefinition, error) {
	tours := make([]domain.TourDefinition, 0, len(b.tours))
	for _, t := range b.tours {
		tours = append(tours, t.Build())
	}
	if err := validator.ValidateTours(tours); err != nil {
		return nil, err
	}
	return tours, nil
}

// Build compiles the tours into a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	tours, err := b.Tours()
	if err != nil {
		return nil, err
	}
	loader, err := memory.NewLoader(tours...)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
