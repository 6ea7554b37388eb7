package dsl

import (
	"time"

	"github.com/aretw0/narrate/pkg/domain"
)

// TourBuilder provides a fluent API for configuring a tour.
type TourBuilder struct {
	id    string
	name  string
	pages []*PageBuilder
}

// Name sets the display name of the tour.
func (t *TourBuilder) Name(name string) *TourBuilder {
	t.name = name
	return t
}

// Page starts a page, or returns the existing one with the same id.
func (t *TourBuilder) Page(id string) *PageBuilder {
	for _, p := range t.pages {
		if p.page.ID == id {
			return p
		}
	}
	p := &PageBuilder{page: domain.Page{ID: id}, tour: t}
	t.pages = append(t.pages, p)
	return p
}

// Build returns the underlying domain.TourDefinition.
func (t *TourBuilder) Build() domain.TourDefinition {
	def := domain.TourDefinition{ID: t.id, Name: t.name}
	for _, p := range t.pages {
		def.Pages = append(def.Pages, p.build())
	}
	return def
}

// PageBuilder configures a page of a tour.
type PageBuilder struct {
	page  domain.Page
	steps []*StepBuilder
	tour  *TourBuilder
}

// Title sets the page title.
func (p *PageBuilder) Title(title string) *PageBuilder {
	p.page.Title = title
	return p
}

// Target sets the URL or route the page lives at.
func (p *PageBuilder) Target(target string) *PageBuilder {
	p.page.Target = target
	return p
}

// Step appends a step to the page.
func (p *PageBuilder) Step(id string) *StepBuilder {
	s := &StepBuilder{step: domain.Step{ID: id}, page: p}
	p.steps = append(p.steps, s)
	return s
}

// Tour returns to the enclosing tour, to chain another page.
func (p *PageBuilder) Tour() *TourBuilder {
	return p.tour
}

func (p *PageBuilder) build() domain.Page {
	page := p.page
	page.Steps = make([]domain.Step, 0, len(p.steps))
	for _, s := range p.steps {
		page.Steps = append(page.Steps, s.Build())
	}
	return page
}

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	step domain.Step
	page *PageBuilder
}

// Title sets the caption title.
func (s *StepBuilder) Title(title string) *StepBuilder {
	s.step.Title = title
	return s
}

// Describe sets the caption text.
func (s *StepBuilder) Describe(text string) *StepBuilder {
	s.step.Description = text
	return s
}

// Select sets the CSS selector hint of the highlighted element.
func (s *StepBuilder) Select(selector string) *StepBuilder {
	s.step.Selector = selector
	return s
}

// Element describes the highlighted element for vision location.
func (s *StepBuilder) Element(description string) *StepBuilder {
	s.step.Element = description
	return s
}

// Narrate sets the spoken text.
func (s *StepBuilder) Narrate(text string) *StepBuilder {
	s.step.Narration = text
	return s
}

// Position places the caption relative to the element.
func (s *StepBuilder) Position(pos string) *StepBuilder {
	s.step.Position = pos
	return s
}

// For sets the pause after the narration.
func (s *StepBuilder) For(d time.Duration) *StepBuilder {
	s.step.Duration = d
	return s
}

// WaitFor makes the step wait until selector matches, up to timeout.
func (s *StepBuilder) WaitFor(selector string, timeout time.Duration) *StepBuilder {
	s.step.WaitFor = &domain.WaitFor{Selector: selector, Timeout: timeout}
	return s
}

// Click clicks the target after the narration. Without a selector the
// highlighted element is clicked.
func (s *StepBuilder) Click(selector ...string) *StepBuilder {
	s.step.Action = &domain.Action{Kind: domain.ActionClick, Selector: first(selector)}
	return s
}

// Scroll scrolls the target into view after the narration.
func (s *StepBuilder) Scroll(selector ...string) *StepBuilder {
	s.step.Action = &domain.Action{Kind: domain.ActionScroll, Selector: first(selector)}
	return s
}

// Wait pauses for d after the narration.
func (s *StepBuilder) Wait(d time.Duration) *StepBuilder {
	s.step.Action = &domain.Action{Kind: domain.ActionWait, Delay: d}
	return s
}

// Page returns to the enclosing page, to chain another step.
func (s *StepBuilder) Page() *PageBuilder {
	return s.page
}

// Build returns the underlying domain.Step.
func (s *StepBuilder) Build() domain.Step {
	return s.step
}

func first(v []string) string {
	if len(v) > 0 {
		return v[0]
	}
	return ""
}
