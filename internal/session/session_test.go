package session_test

import (
	"context"
	"testing"

	"github.com/mriia-ai/tutor/internal/session"
	"github.com/mriia-ai/tutor/internal/tutor"
)

func sampleSession(studentKey string) session.Session {
	return session.Session{
		StudentKey: studentKey,
		Subject:    "Алгебра",
		Grade:      9,
		Query:      "квадратні рівняння",
		Questions: []tutor.PracticeQuestion{
			{
				ID:           "q1",
				Question:     "Скільки буде 2+2?",
				Options:      []string{"4", "5", "6", "7"},
				CorrectIndex: 0,
				Explanation:  "2+2=4",
				Topic:        "Арифметика",
			},
		},
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	id, err := store.Create(ctx, sampleSession("tg:100"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Fatal("Create() returned empty id")
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subject != "Алгебра" || len(got.Questions) != 1 {
		t.Errorf("session = %+v, want Алгебра with 1 question", got)
	}
	if got.StartedAt.IsZero() {
		t.Error("StartedAt not set on create")
	}
}

func TestMemoryStore_RequiresStudentKey(t *testing.T) {
	store := session.NewMemoryStore()
	if _, err := store.Create(context.Background(), session.Session{}); err == nil {
		t.Fatal("Create() should reject an empty student key")
	}
}

func TestMemoryStore_Active(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()

	if _, ok := store.Active(ctx, "tg:100"); ok {
		t.Fatal("Active() = true for a student with no sessions")
	}

	id, err := store.Create(ctx, sampleSession("tg:100"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Create(ctx, sampleSession("tg:200")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	active, ok := store.Active(ctx, "tg:100")
	if !ok || active.ID != id {
		t.Fatalf("Active() = %+v, %v, want session %s", active, ok, id)
	}

	if err := store.End(ctx, id); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, ok := store.Active(ctx, "tg:100"); ok {
		t.Error("Active() = true after End()")
	}
}

func TestMemoryStore_EndUnknown(t *testing.T) {
	store := session.NewMemoryStore()
	if err := store.End(context.Background(), "nope"); err == nil {
		t.Fatal("End() should fail for an unknown session")
	}
}

func TestMemoryEventLogger(t *testing.T) {
	logger := session.NewMemoryEventLogger()

	err := logger.Log(context.Background(), session.Event{
		SessionID:  "s1",
		StudentKey: "tg:100",
		Type:       "answers_graded",
		Data:       map[string]any{"correct": 7, "total": 8},
	})
	if err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 || events[0].Type != "answers_graded" {
		t.Fatalf("events = %+v, want one answers_graded event", events)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	logger := session.NewMemoryEventLogger()
	if err := logger.Log(context.Background(), session.Event{SessionID: "s1"}); err == nil {
		t.Fatal("Log() should reject an event without a type")
	}
}
