package index

import (
	"context"
	"math"
	"sort"
)

// MemoryTopicIndex is an in-memory TopicIndex for tests and local runs.
// Each entry pairs a record with its stored vector; searches rank by cosine
// similarity against the query vector.
type MemoryTopicIndex struct {
	Entries []MemoryTopicEntry
}

// MemoryTopicEntry is a stored topic with its embedding.
type MemoryTopicEntry struct {
	Record TopicRecord
	Vector []float32
}

// Add stores a topic with its vector.
func (m *MemoryTopicIndex) Add(record TopicRecord, vector []float32) {
	m.Entries = append(m.Entries, MemoryTopicEntry{Record: record, Vector: vector})
}

func (m *MemoryTopicIndex) SearchTopics(_ context.Context, vector []float32, filter TopicFilter, topK int) ([]TopicRecord, error) {
	var results []TopicRecord
	for _, e := range m.Entries {
		if filter.Grade != 0 && e.Record.Grade != filter.Grade {
			continue
		}
		if filter.DisciplineID != 0 && e.Record.DisciplineID != filter.DisciplineID {
			continue
		}
		r := e.Record
		r.Similarity = Cosine(vector, e.Vector)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// MemoryPageIndex is an in-memory PageIndex for tests and local runs.
type MemoryPageIndex struct {
	Entries []MemoryPageEntry
}

// MemoryPageEntry is a stored page with its embedding and topic linkage.
type MemoryPageEntry struct {
	Record       PageRecord
	BookTopicID  string
	DisciplineID int
	Vector       []float32
}

// Add stores a page with its vector and topic linkage.
func (m *MemoryPageIndex) Add(record PageRecord, bookTopicID string, disciplineID int, vector []float32) {
	m.Entries = append(m.Entries, MemoryPageEntry{
		Record:       record,
		BookTopicID:  bookTopicID,
		DisciplineID: disciplineID,
		Vector:       vector,
	})
}

func (m *MemoryPageIndex) SearchPages(_ context.Context, vector []float32, filter PageFilter, topK int) ([]PageRecord, error) {
	var results []PageRecord
	for _, e := range m.Entries {
		if filter.BookTopicID != "" && e.BookTopicID != filter.BookTopicID {
			continue
		}
		if filter.Grade != 0 && e.Record.Grade != filter.Grade {
			continue
		}
		if filter.DisciplineID != 0 && e.DisciplineID != filter.DisciplineID {
			continue
		}
		if filter.StartPage > 0 && filter.EndPage > 0 {
			if e.Record.Page < filter.StartPage || e.Record.Page > filter.EndPage {
				continue
			}
		}
		r := e.Record
		r.Similarity = Cosine(vector, e.Vector)
		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// and zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
