package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mriia-ai/tutor/internal/records"
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

	store, err := records.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	seed := []records.Score{
		{StudentID: 1, Subject: "Алгебра", Topic: "Квадратні рівняння", Value: 9, LessonDate: day("2026-03-10")},
		{StudentID: 1, Subject: "Алгебра", Topic: "Лінійні рівняння", Value: 5, LessonDate: day("2026-02-01")},
		{StudentID: 2, Subject: "Історія України", Topic: "Козаччина", Value: 11, LessonDate: day("2026-03-01")},
	}
	for _, sc := range seed {
		if err := store.InsertScore(ctx, sc); err != nil {
			t.Fatalf("InsertScore() error = %v", err)
		}
	}
	if err := store.InsertAbsence(ctx, records.Absence{
		StudentID: 1, Subject: "Алгебра", Topic: "Теорема Вієта", LessonDate: day("2026-02-15"),
	}); err != nil {
		t.Fatalf("InsertAbsence() error = %v", err)
	}

	t.Run("scores sorted ascending", func(t *testing.T) {
		scores, err := store.Scores(ctx, 1, "Алгебра")
		if err != nil {
			t.Fatalf("Scores() error = %v", err)
		}
		if len(scores) != 2 {
			t.Fatalf("len(scores) = %d, want 2", len(scores))
		}
		if !scores[0].LessonDate.Before(scores[1].LessonDate) {
			t.Error("scores not sorted by lesson date ascending")
		}
	})

	t.Run("absences", func(t *testing.T) {
		absences, err := store.Absences(ctx, 1, "Алгебра")
		if err != nil {
			t.Fatalf("Absences() error = %v", err)
		}
		if len(absences) != 1 || absences[0].Topic != "Теорема Вієта" {
			t.Errorf("absences = %+v, want one Теорема Вієта entry", absences)
		}
	})

	t.Run("subject topics distinct", func(t *testing.T) {
		topics, err := store.SubjectTopics(ctx, "Алгебра")
		if err != nil {
			t.Fatalf("SubjectTopics() error = %v", err)
		}
		if len(topics) != 2 {
			t.Errorf("len(topics) = %d, want 2", len(topics))
		}
	})

	t.Run("list students aggregates", func(t *testing.T) {
		summaries, err := store.ListStudents(ctx)
		if err != nil {
			t.Fatalf("ListStudents() error = %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("len(summaries) = %d, want 2", len(summaries))
		}
		first := summaries[0]
		if first.StudentID != 1 || first.ScoreCount != 2 || first.AbsenceCount != 1 {
			t.Errorf("summary = %+v, want student 1 with 2 scores and 1 absence", first)
		}
	})
}
