package tutor

import (
	"context"
	"log/slog"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/index"
)

// TopicRouter embeds the teacher's query and finds the closest curriculum
// topics in the table-of-contents collection.
type TopicRouter struct {
	embedder      ai.Embedder
	topics        index.TopicIndex
	minSimilarity float64
	topK          int
}

// NewTopicRouter creates a router over the embedding client and the topic
// collection. topK bounds the result list, minSimilarity drops weak hits.
func NewTopicRouter(embedder ai.Embedder, topics index.TopicIndex, minSimilarity float64, topK int) *TopicRouter {
	return &TopicRouter{
		embedder:      embedder,
		topics:        topics,
		minSimilarity: minSimilarity,
		topK:          topK,
	}
}

// Route embeds the query and returns matched topics ordered by similarity
// descending, at most topK, all above the similarity floor. An empty result
// is not an error: it means no indexed content relates to the query.
func (r *TopicRouter) Route(ctx context.Context, query string, grade, disciplineID int) ([]index.TopicRecord, []float32, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, &EmbeddingServiceError{Err: err}
	}

	hits, err := r.topics.SearchTopics(ctx, vector, index.TopicFilter{
		Grade:        grade,
		DisciplineID: disciplineID,
	}, r.topK)
	if err != nil {
		return nil, vector, &IndexQueryError{Collection: "topics", Err: err}
	}

	matched := make([]index.TopicRecord, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= r.minSimilarity {
			matched = append(matched, h)
		}
	}

	slog.Debug("topics routed",
		"query_len", len(query),
		"grade", grade,
		"discipline_id", disciplineID,
		"hits", len(hits),
		"matched", len(matched),
	)
	return matched, vector, nil
}
