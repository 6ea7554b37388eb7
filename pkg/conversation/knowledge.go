package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/aretw0/narrate/pkg/ports"
)

// DefaultKnowledgeLimit caps the markdown sent as page knowledge.
const DefaultKnowledgeLimit = 8000

// PageKnowledge turns the visible page content into markdown grounding text.
type PageKnowledge struct {
	surface  ports.Surface
	selector string
	limit    int
	md       *converter.Converter
}

var _ ports.KnowledgeBase = (*PageKnowledge)(nil)

// NewPageKnowledge reads the element matched by selector ("main" when empty).
func NewPageKnowledge(surface ports.Surface, selector string, limit int) *PageKnowledge {
	if selector == "" {
		selector = "main"
	}
	if limit <= 0 {
		limit = DefaultKnowledgeLimit
	}
	return &PageKnowledge{
		surface:  surface,
		selector: selector,
		limit:    limit,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Lookup ignores the question; the whole region is the knowledge.
func (k *PageKnowledge) Lookup(ctx context.Context, _ string) (string, error) {
	html, err := k.surface.HTML(ctx, k.selector)
	if err != nil {
		return "", fmt.Errorf("read page content: %w", err)
	}
	md, err := k.md.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert page content: %w", err)
	}
	md = strings.TrimSpace(md)
	if len(md) > k.limit {
		md = md[:k.limit]
	}
	return md, nil
}
