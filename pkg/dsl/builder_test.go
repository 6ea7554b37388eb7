package dsl

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/narrate/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_SimpleTour(t *testing.T) {
	b := New()

	home := b.Tour("onboarding").Name("Onboarding").Page("home").Title("Home").Target("/")
	home.Step("welcome").
		Narrate("Welcome aboard.")
	home.Step("search").
		Select("#search").
		Element("the search box").
		Narrate("Search from anywhere.").
		WaitFor("#search", 3*time.Second).
		Click()

	b.Tour("onboarding").Page("settings").
		Step("theme").Select("#theme").Position("left").For(2 * time.Second).Scroll().
		Page().
		Step("done").Narrate("That's it.").Wait(time.Second)

	loader, err := b.Build()
	require.NoError(t, err)

	tour, err := loader.Tour(context.Background(), "onboarding")
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", tour.Name)
	require.Len(t, tour.Pages, 2)
	assert.Equal(t, "/", tour.Pages[0].Target)
	assert.Equal(t, 4, tour.TotalSteps())

	search := tour.Pages[0].Steps[1]
	assert.Equal(t, "#search", search.Selector)
	assert.Equal(t, "the search box", search.Element)
	assert.Equal(t, &domain.WaitFor{Selector: "#search", Timeout: 3 * time.Second}, search.WaitFor)
	assert.Equal(t, &domain.Action{Kind: domain.ActionClick}, search.Action)

	theme := tour.Pages[1].Steps[0]
	assert.Equal(t, "left", theme.Position)
	assert.Equal(t, 2*time.Second, theme.Duration)
	assert.Equal(t, domain.ActionScroll, theme.Action.Kind)

	done := tour.Pages[1].Steps[1]
	assert.Equal(t, &domain.Action{Kind: domain.ActionWait, Delay: time.Second}, done.Action)
}

func TestBuilder_TourOrder(t *testing.T) {
	b := New()
	b.Tour("b").Page("p").Step("s").Narrate("b")
	b.Tour("a").Page("p").Step("s").Narrate("a")

	tours, err := b.Tours()
	require.NoError(t, err)
	require.Len(t, tours, 2)
	assert.Equal(t, "b", tours[0].ID)
	assert.Equal(t, "a", tours[1].ID)
}

func TestBuilder_Validation(t *testing.T) {
	b := New()
	p := b.Tour("broken").Page("home")
	p.Step("a").Narrate("one")
	p.Step("a").Narrate("two")
	p.Step("wait").Narrate("x").Wait(0)

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTour)
	assert.Contains(t, err.Error(), "step id 'a'")
	assert.Contains(t, err.Error(), "positive delay")
}

func TestBuilder_EmptyTour(t *testing.T) {
	b := New()
	b.Tour("empty")
	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no steps")
}
