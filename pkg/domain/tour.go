package domain

import "time"

// DefaultStepDelay is the pause between the end of a step's narration and the next step.
const DefaultStepDelay = 1000 * time.Millisecond

// DefaultWaitTimeout bounds how long a step waits for its precondition element.
const DefaultWaitTimeout = 5 * time.Second

// TourDefinition is an ordered walkthrough. It is immutable once loaded.
type TourDefinition struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Pages []Page `json:"pages" yaml:"pages"`
}

// Page groups the steps played on a single location of the host application.
type Page struct {
	ID     string `json:"id" yaml:"id"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"` // URL or route
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
	Steps  []Step `json:"steps" yaml:"steps"`
}

// Step is one narrated, optionally highlighted, unit of a tour.
type Step struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Selector is the CSS selector hint used when vision location fails or is disabled.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`

	// Element is the natural language description sent to the vision model.
	Element string `json:"element,omitempty" yaml:"element,omitempty"`

	Narration string `json:"narration,omitempty" yaml:"narration,omitempty"`
	Position  string `json:"position,omitempty" yaml:"position,omitempty"`

	Action   *Action       `json:"action,omitempty" yaml:"action,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	WaitFor  *WaitFor      `json:"waitFor,omitempty" yaml:"waitFor,omitempty"`
}

// Delay returns the post-narration delay of the step. A step without its own
// duration uses fallback, or DefaultStepDelay when fallback is not positive.
func (s Step) Delay(fallback time.Duration) time.Duration {
	switch {
	case s.Duration > 0:
		return s.Duration
	case fallback > 0:
		return fallback
	}
	return DefaultStepDelay
}

// WaitFor is a precondition: the step waits until Selector matches an element.
type WaitFor struct {
	Selector string        `json:"selector" yaml:"selector"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Within returns the effective timeout of the precondition, falling back like
// Step.Delay does.
func (w WaitFor) Within(fallback time.Duration) time.Duration {
	switch {
	case w.Timeout > 0:
		return w.Timeout
	case fallback > 0:
		return fallback
	}
	return DefaultWaitTimeout
}

// PlacedStep is a step annotated with the page it belongs to.
type PlacedStep struct {
	Step
	Page *Page
}

// Steps flattens the pages of the tour into the play order.
// It is recomputed on every call.
func (t *TourDefinition) Steps() []PlacedStep {
	if t == nil {
		return nil
	}
	var out []PlacedStep
	for i := range t.Pages {
		p := &t.Pages[i]
		for _, s := range p.Steps {
			out = append(out, PlacedStep{Step: s, Page: p})
		}
	}
	return out
}

// TotalSteps counts the steps across all pages.
func (t *TourDefinition) TotalSteps() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, p := range t.Pages {
		n += len(p.Steps)
	}
	return n
}
