// Package records stores historical journal data: lesson scores and
// absences per student, subject and topic. It backs the personalization
// profile and the student listing operations.
package records

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Score is a graded lesson entry on the 12-point scale.
type Score struct {
	StudentID  int       `json:"student_id"`
	Subject    string    `json:"subject"`
	Topic      string    `json:"topic"`
	Value      float64   `json:"value"`
	LessonDate time.Time `json:"lesson_date"`
}

// Absence is a missed lesson entry.
type Absence struct {
	StudentID  int       `json:"student_id"`
	Subject    string    `json:"subject"`
	Topic      string    `json:"topic"`
	LessonDate time.Time `json:"lesson_date"`
}

// StudentSummary aggregates a student's journal for listings.
type StudentSummary struct {
	StudentID    int      `json:"student_id"`
	Subjects     []string `json:"subjects"`
	ScoreCount   int      `json:"score_count"`
	AverageScore float64  `json:"average_score"`
	AbsenceCount int      `json:"absence_count"`
}

// Store provides read access to the journal.
type Store interface {
	// Scores returns a student's scores for one subject, oldest first.
	Scores(ctx context.Context, studentID int, subject string) ([]Score, error)
	// Absences returns a student's absences for one subject, oldest first.
	Absences(ctx context.Context, studentID int, subject string) ([]Absence, error)
	// SubjectTopics returns the distinct topic names graded in a subject.
	SubjectTopics(ctx context.Context, subject string) ([]string, error)
	// ListStudents returns a summary for every student in the journal.
	ListStudents(ctx context.Context) ([]StudentSummary, error)
}

// MemoryStore is an in-memory Store. It backs the workbook loader and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	scores   []Score
	absences []Absence
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AddScore appends a score entry.
func (s *MemoryStore) AddScore(score Score) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = append(s.scores, score)
}

// AddAbsence appends an absence entry.
func (s *MemoryStore) AddAbsence(absence Absence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences = append(s.absences, absence)
}

func (s *MemoryStore) Scores(_ context.Context, studentID int, subject string) ([]Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Score
	for _, sc := range s.scores {
		if sc.StudentID == studentID && sc.Subject == subject {
			out = append(out, sc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LessonDate.Before(out[j].LessonDate)
	})
	return out, nil
}

func (s *MemoryStore) Absences(_ context.Context, studentID int, subject string) ([]Absence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Absence
	for _, a := range s.absences {
		if a.StudentID == studentID && a.Subject == subject {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LessonDate.Before(out[j].LessonDate)
	})
	return out, nil
}

func (s *MemoryStore) SubjectTopics(_ context.Context, subject string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var topics []string
	for _, sc := range s.scores {
		if sc.Subject == subject && sc.Topic != "" && !seen[sc.Topic] {
			seen[sc.Topic] = true
			topics = append(topics, sc.Topic)
		}
	}
	sort.Strings(topics)
	return topics, nil
}

func (s *MemoryStore) ListStudents(_ context.Context) ([]StudentSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		subjects map[string]bool
		count    int
		sum      float64
		absences int
	}
	byStudent := make(map[int]*agg)

	get := func(id int) *agg {
		a, ok := byStudent[id]
		if !ok {
			a = &agg{subjects: make(map[string]bool)}
			byStudent[id] = a
		}
		return a
	}

	for _, sc := range s.scores {
		a := get(sc.StudentID)
		a.subjects[sc.Subject] = true
		a.count++
		a.sum += sc.Value
	}
	for _, ab := range s.absences {
		a := get(ab.StudentID)
		a.subjects[ab.Subject] = true
		a.absences++
	}

	summaries := make([]StudentSummary, 0, len(byStudent))
	for id, a := range byStudent {
		subjects := make([]string, 0, len(a.subjects))
		for sub := range a.subjects {
			subjects = append(subjects, sub)
		}
		sort.Strings(subjects)

		avg := 0.0
		if a.count > 0 {
			avg = a.sum / float64(a.count)
		}
		summaries = append(summaries, StudentSummary{
			StudentID:    id,
			Subjects:     subjects,
			ScoreCount:   a.count,
			AverageScore: avg,
			AbsenceCount: a.absences,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StudentID < summaries[j].StudentID
	})
	return summaries, nil
}

// StudentExists reports whether any journal entry mentions the student.
func StudentExists(ctx context.Context, store Store, studentID int) (bool, error) {
	summaries, err := store.ListStudents(ctx)
	if err != nil {
		return false, fmt.Errorf("list students: %w", err)
	}
	for _, s := range summaries {
		if s.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}
