package ai

import (
	"fmt"
	"sync"
)

// UsageTracker records token consumption per student and task.
type UsageTracker interface {
	// Record adds token usage for a student/task pair.
	Record(studentID string, task TaskType, tokens int) error
	// Usage returns tokens consumed by a student across all tasks.
	Usage(studentID string) (int64, error)
	// UsageByTask returns tokens consumed by a student for one task.
	UsageByTask(studentID string, task TaskType) (int64, error)
}

// InMemoryUsage is a process-local usage tracker. Production deployments can
// swap in a Dragonfly-backed tracker with periodic PostgreSQL sync.
type InMemoryUsage struct {
	mu     sync.RWMutex
	totals map[string]int64 // studentID -> tokens
	byTask map[string]int64 // studentID:task -> tokens
}

// NewInMemoryUsage creates a new in-memory usage tracker.
func NewInMemoryUsage() *InMemoryUsage {
	return &InMemoryUsage{
		totals: make(map[string]int64),
		byTask: make(map[string]int64),
	}
}

func (u *InMemoryUsage) Record(studentID string, task TaskType, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.totals[studentID] += int64(tokens)
	u.byTask[usageKey(studentID, task)] += int64(tokens)
	return nil
}

func (u *InMemoryUsage) Usage(studentID string) (int64, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.totals[studentID], nil
}

func (u *InMemoryUsage) UsageByTask(studentID string, task TaskType) (int64, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.byTask[usageKey(studentID, task)], nil
}

func usageKey(studentID string, task TaskType) string {
	return studentID + ":" + task.String()
}
