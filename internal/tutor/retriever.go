package tutor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mriia-ai/tutor/internal/index"
)

// ContextRetriever collects textbook pages for the matched topics. Pages are
// searched with the query vector, restricted to each topic's book section and
// page range, merged in topic-ranking order and deduplicated by page id.
type ContextRetriever struct {
	pages    index.PageIndex
	maxPages int
}

// NewContextRetriever creates a retriever over the page collection. maxPages
// caps the merged result to bound prompt size downstream.
func NewContextRetriever(pages index.PageIndex, maxPages int) *ContextRetriever {
	return &ContextRetriever{pages: pages, maxPages: maxPages}
}

// Retrieve returns the merged page list and human-readable citations for the
// matched topics. The first occurrence of a page id wins, so pages of
// higher-ranked topics come first.
func (r *ContextRetriever) Retrieve(ctx context.Context, vector []float32, topics []index.TopicRecord) ([]index.PageRecord, []string, error) {
	var merged []index.PageRecord
	seen := make(map[string]bool)

	for _, topic := range topics {
		hits, err := r.pages.SearchPages(ctx, vector, index.PageFilter{
			BookTopicID:  topic.BookTopicID,
			Grade:        topic.Grade,
			DisciplineID: topic.DisciplineID,
			StartPage:    topic.StartPage,
			EndPage:      topic.EndPage,
		}, r.maxPages)
		if err != nil {
			return nil, nil, &IndexQueryError{Collection: "pages", Err: err}
		}

		for _, page := range hits {
			if seen[page.ID] {
				continue
			}
			seen[page.ID] = true
			merged = append(merged, page)
		}
	}

	if len(merged) > r.maxPages {
		merged = merged[:r.maxPages]
	}

	citations := buildCitations(merged)

	slog.Debug("pages retrieved",
		"topics", len(topics),
		"pages", len(merged),
		"citations", len(citations),
	)
	return merged, citations, nil
}

// buildCitations renders one "book, стор. N" line per distinct book/page pair.
func buildCitations(pages []index.PageRecord) []string {
	var citations []string
	seen := make(map[string]bool)
	for _, p := range pages {
		c := fmt.Sprintf("%s, стор. %d", p.BookName, p.Page)
		if p.BookName == "" {
			c = fmt.Sprintf("стор. %d", p.Page)
		}
		if !seen[c] {
			seen[c] = true
			citations = append(citations, c)
		}
	}
	return citations
}
