package ports

import (
	"context"

	"github.com/aretw0/narrate/pkg/domain"
)

// Subscription is returned by every event registration. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// SubscriptionFunc adapts a plain function to a Subscription.
type SubscriptionFunc func()

// Cancel implements Subscription.
func (f SubscriptionFunc) Cancel() {
	if f != nil {
		f()
	}
}

// Surface is the host page a tour is played on.
type Surface interface {
	// Find returns the first element matching selector.
	// Returns domain.ErrElementNotFound when nothing matches.
	Find(ctx context.Context, selector string) (domain.ElementInfo, error)

	// FindAll returns every element matching selector, each with a unique selector.
	FindAll(ctx context.Context, selector string) ([]domain.ElementInfo, error)

	// Viewport returns the visible region of the page.
	Viewport(ctx context.Context) (domain.Rect, error)

	// ScrollIntoView scrolls the page so the element becomes visible.
	ScrollIntoView(ctx context.Context, selector string) error

	// Click performs a user-like click on the element.
	Click(ctx context.Context, selector string) error

	// Screenshot renders the clip region (or the viewport when nil) as PNG bytes.
	Screenshot(ctx context.Context, clip *domain.Rect) ([]byte, error)

	// Snapshot returns a structural snapshot of the document body.
	Snapshot(ctx context.Context, maxDepth, maxChildren int, markerAttr string) (*domain.DOMNode, error)

	// HTML returns the outer HTML of the first element matching selector.
	HTML(ctx context.Context, selector string) (string, error)

	// Draw creates or replaces the named layer.
	Draw(ctx context.Context, layer domain.Layer) error

	// Clear removes the named layer. Clearing an absent layer is not an error.
	Clear(ctx context.Context, name string) error

	// TrackHover starts reporting hover events for elements matching the selectors.
	// Calling it again replaces the tracked set; an empty set stops tracking.
	TrackHover(ctx context.Context, selectors []string) error

	// Subscribe registers handler for UI events. The handler is called sequentially.
	Subscribe(handler func(domain.UIEvent)) Subscription
}

// Confirmer asks the user to confirm a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, message string) (bool, error)
}

// ConfirmFunc adapts a function to a Confirmer.
type ConfirmFunc func(ctx context.Context, message string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, message string) (bool, error) {
	return f(ctx, message)
}
