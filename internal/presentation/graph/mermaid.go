// Package graph renders tours as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/narrate/pkg/domain"
)

// Overlay marks playback progress on the chart.
type Overlay struct {
	VisitedSteps []string
	CurrentStep  string
}

// GenerateMermaid produces a Mermaid flowchart of t. Each page is a subgraph
// and steps are chained in play order. Shapes follow the step kind:
// - Click action: [[Subroutine]]
// - Wait action or precondition: [/Parallelogram/]
// - Narration only (nothing to point at): ([Stadium])
// - Default: [Rectangle]
func GenerateMermaid(t domain.TourDefinition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var prev string
	for _, p := range t.Pages {
		title := p.Title
		if title == "" {
			title = p.ID
		}
		fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID("page_"+p.ID), escape(title))
		for _, s := range p.Steps {
			fmt.Fprintf(&sb, "        %s\n", node(s))
		}
		sb.WriteString("    end\n")

		for _, s := range p.Steps {
			id := sanitizeMermaidID(s.ID)
			if prev != "" {
				arrow := "-->"
				if s.WaitFor != nil {
					arrow = fmt.Sprintf("-. \"wait %s\" .->", escape(s.WaitFor.Selector))
				}
				fmt.Fprintf(&sb, "    %s %s %s\n", prev, arrow, id)
			}
			prev = id
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text stays readable on both light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, id := range overlay.VisitedSteps {
			safeID := sanitizeMermaidID(id)
			if !visited[safeID] && safeID != "" {
				visited[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentStep != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentStep))
		}
	}

	return sb.String()
}

func node(s domain.Step) string {
	opener, closer := "[", "]"
	switch {
	case s.Action != nil && s.Action.Kind == domain.ActionClick:
		opener, closer = "[[", "]]"
	case s.Action != nil && s.Action.Kind == domain.ActionWait, s.WaitFor != nil:
		opener, closer = "[/", "/]"
	case s.Selector == "" && s.Element == "":
		opener, closer = "([", "])"
	}

	label := s.ID
	if s.Title != "" {
		label = s.Title
	}
	label = escape(label)
	if s.Duration > 0 {
		label += " <br/> ⏱️ " + s.Duration.String()
	}
	return fmt.Sprintf("%s%s\"%s\"%s", sanitizeMermaidID(s.ID), opener, label, closer)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
