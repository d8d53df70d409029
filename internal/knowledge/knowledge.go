// Package knowledge provides the advisory lookup the engine consults before
// planning: a remote MCP search service, with a local sqlite snapshot as the
// offline alternative. Empty or failed lookups are never fatal; the engine
// proceeds without guidance.
package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// Excerpt is one ranked advisory snippet.
type Excerpt struct {
	Text string `json:"text"`
}

// Searcher is the advisory lookup interface.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Excerpt, error)
}

// Excerpt length used when assembling prompt context.
const contextExcerptLen = 800

// FormatContext renders ranked excerpts into prompt context. Rank headers
// produced by some retrieval backends are stripped so the model sees only
// the advisory text.
func FormatContext(excerpts []Excerpt) string {
	if len(excerpts) == 0 {
		return ""
	}

	var b strings.Builder
	for i, ex := range excerpts {
		text := ex.Text
		if strings.Contains(text, "[Rank") {
			if idx := strings.Index(text, "\n\n"); idx >= 0 {
				text = text[idx+2:]
			}
		}
		if len(text) > contextExcerptLen {
			text = text[:contextExcerptLen]
		}
		fmt.Fprintf(&b, "\n--- Source %d ---\n%s\n", i+1, text)
	}
	return b.String()
}
