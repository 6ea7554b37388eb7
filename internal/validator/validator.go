// Package validator checks tour definitions before they are played.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/narrate/pkg/domain"
)

// ValidateTour checks a single tour for problems that would break playback:
// missing ids, empty tours, duplicate step ids, steps with nothing to point at
// or say, and malformed actions or preconditions.
func ValidateTour(t domain.TourDefinition) error {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t.ID == "" {
		report("tour has no id")
	}
	if t.TotalSteps() == 0 {
		report("tour has no steps")
	}

	pages := make(map[string]bool)
	steps := make(map[string]string)
	for pi, p := range t.Pages {
		pageRef := p.ID
		if pageRef == "" {
			pageRef = fmt.Sprintf("#%d", pi)
			report("page %s has no id", pageRef)
		} else if pages[p.ID] {
			report("duplicate page id '%s'", p.ID)
		}
		pages[p.ID] = true

		for si, s := range p.Steps {
			ref := fmt.Sprintf("%s/%s", pageRef, s.ID)
			if s.ID == "" {
				ref = fmt.Sprintf("%s/#%d", pageRef, si)
				report("step %s has no id", ref)
			} else if prev, ok := steps[s.ID]; ok {
				report("step id '%s' is used on page %s and %s", s.ID, prev, pageRef)
			} else {
				steps[s.ID] = pageRef
			}

			if s.Selector == "" && s.Element == "" && s.Narration == "" {
				report("step %s has no selector, element or narration", ref)
			}
			if s.Duration < 0 {
				report("step %s has a negative duration", ref)
			}
			if s.WaitFor != nil {
				if s.WaitFor.Selector == "" {
					report("step %s waits for an empty selector", ref)
				}
				if s.WaitFor.Timeout < 0 {
					report("step %s has a negative wait timeout", ref)
				}
			}
			if s.Action != nil {
				if !s.Action.Kind.Valid() {
					report("step %s: %v %q", ref, domain.ErrUnknownAction, s.Action.Kind)
				}
				if s.Action.Kind == domain.ActionWait && s.Action.Delay <= 0 {
					report("step %s: wait action needs a positive delay", ref)
				}
				if (s.Action.Kind == domain.ActionClick || s.Action.Kind == domain.ActionScroll) &&
					s.Action.Selector == "" && s.Selector == "" && s.Element == "" {
					report("step %s: %s action has no target", ref, s.Action.Kind)
				}
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w '%s': found %d problems:\n- %s", domain.ErrInvalidTour, t.ID, len(problems), strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateTours validates every tour and rejects duplicate tour ids.
func ValidateTours(tours []domain.TourDefinition) error {
	var errs []error
	seen := make(map[string]bool, len(tours))
	for _, t := range tours {
		if t.ID != "" && seen[t.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate tour id '%s'", domain.ErrInvalidTour, t.ID))
		}
		seen[t.ID] = true
		if err := ValidateTour(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
