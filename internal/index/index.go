// Package index provides vector search over the textbook corpus.
// Topics come from the table-of-contents collection, pages from the
// page-text collection. Both are served by a Chroma instance over HTTP.
package index

import "context"

// TopicRecord is a table-of-contents topic returned by a similarity search.
type TopicRecord struct {
	ID           string
	Title        string
	Document     string
	BookID       string
	BookName     string
	BookTopicID  string
	Grade        int
	Subject      string
	DisciplineID int
	StartPage    int
	EndPage      int
	Similarity   float64
}

// PageRecord is a textbook page returned by a similarity search.
type PageRecord struct {
	ID         string
	Text       string
	Page       int
	BookID     string
	BookName   string
	Grade      int
	Similarity float64
}

// TopicFilter restricts a topic search. Zero fields are not applied.
type TopicFilter struct {
	Grade        int
	DisciplineID int
}

// PageFilter restricts a page search. Zero fields are not applied.
// StartPage/EndPage bound the page_number metadata when both are set.
type PageFilter struct {
	BookTopicID  string
	Grade        int
	DisciplineID int
	StartPage    int
	EndPage      int
}

// TopicIndex searches the table-of-contents collection.
type TopicIndex interface {
	SearchTopics(ctx context.Context, vector []float32, filter TopicFilter, topK int) ([]TopicRecord, error)
}

// PageIndex searches the page-text collection.
type PageIndex interface {
	SearchPages(ctx context.Context, vector []float32, filter PageFilter, topK int) ([]PageRecord, error)
}
