package tutor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/tutor"
)

func retrieverTopics() []index.TopicRecord {
	return []index.TopicRecord{
		{ID: "t1", Title: "Перша тема", BookTopicID: "bt1", Grade: 9, DisciplineID: 131, StartPage: 10, EndPage: 14},
		// Page ranges overlap so a shared page can surface under both topics.
		{ID: "t2", Title: "Друга тема", BookTopicID: "bt2", Grade: 9, DisciplineID: 131, StartPage: 12, EndPage: 20},
	}
}

func TestContextRetriever_MergeAndDedup(t *testing.T) {
	pages := &index.MemoryPageIndex{}
	book := "Українська мова. 9 клас"
	pages.Add(index.PageRecord{ID: "p10", Page: 10, Grade: 9, BookName: book}, "bt1", 131, []float32{1, 0})
	pages.Add(index.PageRecord{ID: "p12", Page: 12, Grade: 9, BookName: book}, "bt1", 131, []float32{0.9, 0.1})
	// Same page indexed under both topics: must appear once.
	pages.Add(index.PageRecord{ID: "p12", Page: 12, Grade: 9, BookName: book}, "bt2", 131, []float32{0.9, 0.1})
	pages.Add(index.PageRecord{ID: "p16", Page: 16, Grade: 9, BookName: book}, "bt2", 131, []float32{0.8, 0.2})
	// Outside its topic's page range: must be filtered by the index.
	pages.Add(index.PageRecord{ID: "p99", Page: 99, Grade: 9, BookName: book}, "bt1", 131, []float32{1, 0})

	r := tutor.NewContextRetriever(pages, 10)
	got, citations, err := r.Retrieve(context.Background(), []float32{1, 0}, retrieverTopics())
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}

	seen := make(map[string]int)
	for _, p := range got {
		seen[p.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("page %s returned %d times", id, n)
		}
	}
	if seen["p99"] != 0 {
		t.Error("page outside the topic page range was returned")
	}
	if len(got) != 3 {
		t.Errorf("got %d pages, want 3", len(got))
	}
	if got[0].ID != "p10" {
		t.Errorf("first page = %s, want the top hit of the top topic", got[0].ID)
	}

	wantCitation := fmt.Sprintf("%s, стор. 10", book)
	found := false
	for _, c := range citations {
		if c == wantCitation {
			found = true
		}
	}
	if !found {
		t.Errorf("citations = %v, want %q present", citations, wantCitation)
	}
}

func TestContextRetriever_CapsPages(t *testing.T) {
	pages := &index.MemoryPageIndex{}
	for i := 0; i < 5; i++ {
		pages.Add(index.PageRecord{
			ID: fmt.Sprintf("p%d", 10+i), Page: 10 + i, Grade: 9, BookName: "Книга",
		}, "bt1", 131, []float32{1, 0})
	}

	r := tutor.NewContextRetriever(pages, 2)
	got, _, err := r.Retrieve(context.Background(), []float32{1, 0}, retrieverTopics()[:1])
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d pages, want cap of 2", len(got))
	}
}

type failingPageIndex struct{}

func (failingPageIndex) SearchPages(context.Context, []float32, index.PageFilter, int) ([]index.PageRecord, error) {
	return nil, fmt.Errorf("chroma unavailable")
}

func TestContextRetriever_IndexFailure(t *testing.T) {
	r := tutor.NewContextRetriever(failingPageIndex{}, 10)

	_, _, err := r.Retrieve(context.Background(), []float32{1, 0}, retrieverTopics())

	var idxErr *tutor.IndexQueryError
	if !errors.As(err, &idxErr) {
		t.Fatalf("Retrieve() error = %v, want IndexQueryError", err)
	}
	if idxErr.Collection != "pages" {
		t.Errorf("Collection = %q, want pages", idxErr.Collection)
	}
}
