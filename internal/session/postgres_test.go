package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mriia-ai/tutor/internal/session"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tutor"),
		postgres.WithUsername("tutor"),
		postgres.WithPassword("tutor"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	pool := startPostgres(t)

	store, err := session.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	id, err := store.Create(ctx, sampleSession("tg:100"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("questions round-trip through jsonb", func(t *testing.T) {
		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if len(got.Questions) != 1 {
			t.Fatalf("len(questions) = %d, want 1", len(got.Questions))
		}
		q := got.Questions[0]
		if q.CorrectIndex != 0 || q.Options[0] != "4" {
			t.Errorf("question = %+v, correct answer lost", q)
		}
	})

	t.Run("active then ended", func(t *testing.T) {
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
		if err := store.End(ctx, id); err == nil {
			t.Error("End() should fail for an already ended session")
		}
	})

	t.Run("events", func(t *testing.T) {
		logger := session.NewPostgresEventLogger(pool)
		err := logger.Log(ctx, session.Event{
			SessionID:  id,
			StudentKey: "tg:100",
			Type:       "answers_graded",
			Data:       map[string]any{"correct": 7, "total": 8},
		})
		if err != nil {
			t.Fatalf("Log() error = %v", err)
		}

		var count int
		if err := pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM session_events WHERE session_id = $1 AND event_type = 'answers_graded'`,
			id,
		).Scan(&count); err != nil {
			t.Fatalf("count events: %v", err)
		}
		if count != 1 {
			t.Errorf("event count = %d, want 1", count)
		}
	})
}
