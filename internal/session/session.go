// Package session persists tutoring sessions for chat front-ends. A session
// holds the question set sent to a student so their answers are graded
// against exactly those questions, and an event log records what happened
// during the run.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/mriia-ai/tutor/internal/tutor"
)

// Session is one tutoring exchange with a student on a chat channel. It
// stays active from the moment questions are sent until the answers are
// graded or the student starts over.
type Session struct {
	ID         string                   `json:"id"`
	StudentKey string                   `json:"student_key"` // channel-scoped user id
	StudentID  int                      `json:"student_id,omitempty"`
	Subject    string                   `json:"subject"`
	Grade      int                      `json:"grade"`
	Query      string                   `json:"query"`
	Questions  []tutor.PracticeQuestion `json:"questions"`
	StartedAt  time.Time                `json:"started_at"`
	EndedAt    *time.Time               `json:"ended_at,omitempty"`
}

// Store persists sessions. A student has at most one active session per
// store; creating a new one does not end the previous, callers end it first.
type Store interface {
	Create(ctx context.Context, s Session) (string, error)
	Get(ctx context.Context, id string) (*Session, error)
	Active(ctx context.Context, studentKey string) (*Session, bool)
	End(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store for tests and the workbook backend.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(_ context.Context, s Session) (string, error) {
	if s.StudentKey == "" {
		return "", fmt.Errorf("student key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = generateID()
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	m.sessions[s.ID] = &s
	return s.ID, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	copied := *s
	return &copied, nil
}

func (m *MemoryStore) Active(_ context.Context, studentKey string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Session
	for _, s := range m.sessions {
		if s.StudentKey != studentKey || s.EndedAt != nil {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, false
	}
	copied := *latest
	return &copied, true
}

func (m *MemoryStore) End(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	now := time.Now()
	s.EndedAt = &now
	return nil
}

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
