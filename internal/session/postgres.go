package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mriia-ai/tutor/internal/tutor"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store. Question sets are stored as
// jsonb so grading sees exactly what was sent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the session tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			student_key TEXT NOT NULL,
			student_id BIGINT NOT NULL DEFAULT 0,
			subject TEXT NOT NULL,
			grade INT NOT NULL,
			query TEXT NOT NULL,
			questions JSONB NOT NULL DEFAULT '[]'::jsonb,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_student_active
			ON sessions (student_key) WHERE ended_at IS NULL;
		CREATE TABLE IF NOT EXISTS session_events (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT,
			student_key TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate session tables: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, sess Session) (string, error) {
	if sess.StudentKey == "" {
		return "", fmt.Errorf("student key is required")
	}

	questions, err := json.Marshal(sess.Questions)
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}

	startedAt := sess.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id := generateID()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, student_key, student_id, subject, grade, query, questions, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		id,
		sess.StudentKey,
		sess.StudentID,
		sess.Subject,
		sess.Grade,
		sess.Query,
		string(questions),
		startedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, student_key, student_id, subject, grade, query, questions, started_at, ended_at
		 FROM sessions
		 WHERE id = $1`,
		id,
	))
}

func (s *PostgresStore) Active(ctx context.Context, studentKey string) (*Session, bool) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sess, err := s.scanSession(s.pool.QueryRow(ctx,
		`SELECT id, student_key, student_id, subject, grade, query, questions, started_at, ended_at
		 FROM sessions
		 WHERE student_key = $1 AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		studentKey,
	))
	if err != nil {
		return nil, false
	}
	return sess, true
}

func (s *PostgresStore) End(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE sessions SET ended_at = NOW() WHERE id = $1 AND ended_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var questions []byte
	var endedAt *time.Time

	err := row.Scan(
		&sess.ID,
		&sess.StudentKey,
		&sess.StudentID,
		&sess.Subject,
		&sess.Grade,
		&sess.Query,
		&questions,
		&sess.StartedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.EndedAt = endedAt
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &sess.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	if sess.Questions == nil {
		sess.Questions = []tutor.PracticeQuestion{}
	}
	return &sess, nil
}
