package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// TourLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.TourLoader.
// expected maps tour ids to their total step count.
func TourLoaderContractTest(t *testing.T, loader ports.TourLoader, expected map[string]int) {
	t.Helper()
	ctx := context.Background()

	t.Run("Tour_Success", func(t *testing.T) {
		for id, steps := range expected {
			tour, err := loader.Tour(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error getting tour %s: %v", id, err)
			}
			if tour.ID != id {
				t.Errorf("id mismatch: got %q, want %q", tour.ID, id)
			}
			if got := tour.TotalSteps(); got != steps {
				t.Errorf("step count mismatch for %s: got %d, want %d", id, got, steps)
			}
		}
	})

	t.Run("Tour_NotFound", func(t *testing.T) {
		_, err := loader.Tour(ctx, "non-existent-tour")
		if !errors.Is(err, domain.ErrTourNotFound) {
			t.Errorf("expected ErrTourNotFound, got %v", err)
		}
	})

	t.Run("Tours", func(t *testing.T) {
		tours, err := loader.Tours(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing tours: %v", err)
		}

		if len(tours) != len(expected) {
			t.Errorf("expected %d tours, got %d", len(expected), len(tours))
		}

		for _, tour := range tours {
			if _, ok := expected[tour.ID]; !ok {
				t.Errorf("unexpected tour %s in list", tour.ID)
			}
		}
	})
}
