package graph_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aretw0/narrate/internal/presentation/graph"
	"github.com/aretw0/narrate/pkg/domain"
)

func tour(steps ...domain.Step) domain.TourDefinition {
	return domain.TourDefinition{ID: "t", Pages: []domain.Page{{ID: "home", Title: "Home", Steps: steps}}}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		tour     domain.TourDefinition
		overlay  *graph.Overlay
		contains []string
	}{
		{
			name: "Step Shapes",
			tour: tour(
				domain.Step{ID: "intro", Narration: "Hi"},
				domain.Step{ID: "logo", Selector: "#logo"},
				domain.Step{ID: "buy", Selector: "#buy", Action: &domain.Action{Kind: domain.ActionClick}},
				domain.Step{ID: "modal", Selector: ".modal", WaitFor: &domain.WaitFor{Selector: ".modal"}},
			),
			contains: []string{
				`intro(["intro"])`,
				`logo["logo"]`,
				`buy[["buy"]]`,
				`modal[/"modal"/]`,
			},
		},
		{
			name: "Page Subgraph",
			tour: tour(domain.Step{ID: "a", Selector: "#a"}),
			contains: []string{
				`subgraph page_home["Home"]`,
				"    end\n",
			},
		},
		{
			name: "Play Order And Preconditions",
			tour: tour(
				domain.Step{ID: "a", Selector: "#a"},
				domain.Step{ID: "b", Selector: "#b"},
				domain.Step{ID: "c", Selector: "#c", WaitFor: &domain.WaitFor{Selector: "#c"}},
			),
			contains: []string{
				"a --> b",
				`b -. "wait #c" .-> c`,
			},
		},
		{
			name: "ID Sanitization And Duration",
			tour: tour(domain.Step{ID: "step-one.md", Title: `Say "hi"`, Selector: "#x", Duration: 2 * time.Second}),
			contains: []string{
				`step_one_md["Say 'hi' <br/> ⏱️ 2s"]`,
			},
		},
		{
			name:    "Overlay",
			tour:    tour(domain.Step{ID: "a", Selector: "#a"}, domain.Step{ID: "b", Selector: "#b"}),
			overlay: &graph.Overlay{VisitedSteps: []string{"a", "a"}, CurrentStep: "b"},
			contains: []string{
				"class a visited;",
				"class b current;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.tour, tt.overlay)
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("GenerateMermaid() = \n%v\nWant substring: %v", got, want)
				}
			}
		})
	}
}

func TestGenerateMermaid_CrossPageEdge(t *testing.T) {
	tr := domain.TourDefinition{ID: "t", Pages: []domain.Page{
		{ID: "one", Steps: []domain.Step{{ID: "a", Selector: "#a"}}},
		{ID: "two", Steps: []domain.Step{{ID: "b", Selector: "#b"}}},
	}}
	got := graph.GenerateMermaid(tr, nil)
	if !strings.Contains(got, "a --> b") {
		t.Errorf("pages are chained in play order, got:\n%s", got)
	}
	if strings.Contains(got, "classDef") {
		t.Errorf("no overlay styles without an overlay")
	}
}
