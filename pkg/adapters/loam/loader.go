// Package loam loads tours from a Loam repository: one markdown document per
// tour, with the tour structure in the front matter.
package loam

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/loam"
	"github.com/aretw0/narrate/internal/validator"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
)

// Loader adapts a Loam repository to ports.TourLoader.
type Loader struct {
	Repo *loam.TypedRepository[TourMetadata]
}

var (
	_ ports.TourLoader = (*Loader)(nil)
	_ ports.Watchable  = (*Loader)(nil)
)

// New creates a Loader over an initialized repository.
func New(repo *loam.TypedRepository[TourMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// Open initializes a read-only, strict Loam repository at path.
func Open(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// The widget never writes tours; read-only also keeps Loam out of its
	// dev-mode sandbox.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[TourMetadata](repo)), nil
}

// Tours lists every tour in the repository, ordered by id.
func (l *Loader) Tours(ctx context.Context) ([]domain.TourDefinition, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string, len(docs))
	tours := make([]domain.TourDefinition, 0, len(docs))
	for _, doc := range docs {
		t, err := buildTour(doc.ID, doc.Data, doc.Content)
		if err != nil {
			return nil, err
		}
		if existing, ok := seen[t.ID]; ok {
			return nil, fmt.Errorf("collision detected: tour '%s' is defined in both '%s' and '%s'", t.ID, existing, doc.ID)
		}
		seen[t.ID] = doc.ID
		tours = append(tours, t)
	}

	sort.Slice(tours, func(i, j int) bool { return tours[i].ID < tours[j].ID })
	return tours, nil
}

// Tour returns one tour. A direct document lookup is tried first; tours whose
// id differs from their file name are found by listing.
func (l *Loader) Tour(ctx context.Context, id string) (domain.TourDefinition, error) {
	if doc, err := l.Repo.Get(ctx, id); err == nil {
		t, err := buildTour(doc.ID, doc.Data, doc.Content)
		if err != nil {
			return domain.TourDefinition{}, err
		}
		if t.ID == id {
			return t, nil
		}
	}

	tours, err := l.Tours(ctx)
	if err != nil {
		return domain.TourDefinition{}, err
	}
	for _, t := range tours {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.TourDefinition{}, fmt.Errorf("%w: %s", domain.ErrTourNotFound, id)
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}

func buildTour(docID string, meta TourMetadata, content string) (domain.TourDefinition, error) {
	id := meta.ID
	if id == "" {
		id = trimExtension(docID)
	}
	narration := bodySections(content)

	t := domain.TourDefinition{ID: id, Name: meta.Name, Pages: make([]domain.Page, 0, len(meta.Pages))}
	var errs []error
	for _, pm := range meta.Pages {
		page := domain.Page{ID: pm.ID, Target: pm.Target, Title: pm.Title, Steps: make([]domain.Step, 0, len(pm.Steps))}
		for _, sm := range pm.Steps {
			step, err := buildStep(sm, narration)
			if err != nil {
				errs = append(errs, fmt.Errorf("step %s: %w", sm.ID, err))
				continue
			}
			page.Steps = append(page.Steps, step)
		}
		t.Pages = append(t.Pages, page)
	}
	if err := errors.Join(errs...); err != nil {
		return domain.TourDefinition{}, fmt.Errorf("%w '%s' in %s: %w", domain.ErrInvalidTour, id, docID, err)
	}
	if err := validator.ValidateTour(t); err != nil {
		return domain.TourDefinition{}, fmt.Errorf("%s: %w", docID, err)
	}
	return t, nil
}

func buildStep(sm StepMetadata, narration map[string]string) (domain.Step, error) {
	s := domain.Step{
		ID:          sm.ID,
		Title:       sm.Title,
		Description: sm.Description,
		Selector:    sm.Selector,
		Element:     sm.Element,
		Narration:   sm.Narration,
		Position:    sm.Position,
	}
	if s.Narration == "" {
		s.Narration = narration[sm.ID]
	}

	var err error
	if s.Duration, err = parseDuration(sm.Duration); err != nil {
		return s, fmt.Errorf("duration: %w", err)
	}
	if sm.WaitFor != nil {
		timeout, err := parseDuration(sm.WaitFor.Timeout)
		if err != nil {
			return s, fmt.Errorf("waitFor.timeout: %w", err)
		}
		s.WaitFor = &domain.WaitFor{Selector: sm.WaitFor.Selector, Timeout: timeout}
	}
	if sm.Action != nil {
		delay, err := parseDuration(sm.Action.Delay)
		if err != nil {
			return s, fmt.Errorf("action.delay: %w", err)
		}
		s.Action = &domain.Action{Kind: domain.ActionKind(sm.Action.Type), Selector: sm.Action.Selector, Delay: delay}
	}
	return s, nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	return time.ParseDuration(v)
}

// bodySections splits a markdown body into sections keyed by their
// second-level heading.
func bodySections(content string) map[string]string {
	sections := make(map[string]string)
	var key string
	var buf []string
	flush := func() {
		if key != "" {
			sections[key] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
		buf = buf[:0]
	}

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if h, ok := strings.CutPrefix(line, "## "); ok {
			flush()
			key = strings.TrimSpace(h)
			continue
		}
		if key != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
