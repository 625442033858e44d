package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store over the student_scores and
// student_absences tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed journal store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the journal tables when they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS student_scores (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL,
			discipline_name TEXT NOT NULL,
			topic_name TEXT NOT NULL DEFAULT '',
			score_numeric NUMERIC NOT NULL,
			lesson_date DATE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scores_student_subject
			ON student_scores (student_id, discipline_name);
		CREATE TABLE IF NOT EXISTS student_absences (
			id BIGSERIAL PRIMARY KEY,
			student_id BIGINT NOT NULL,
			discipline_name TEXT NOT NULL,
			topic_name TEXT NOT NULL DEFAULT '',
			lesson_date DATE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_absences_student_subject
			ON student_absences (student_id, discipline_name);
	`)
	if err != nil {
		return fmt.Errorf("migrate journal tables: %w", err)
	}
	return nil
}

// InsertScore adds a score entry, used by imports and tests.
func (s *PostgresStore) InsertScore(ctx context.Context, score Score) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO student_scores (student_id, discipline_name, topic_name, score_numeric, lesson_date)
		 VALUES ($1, $2, $3, $4, $5)`,
		score.StudentID,
		score.Subject,
		score.Topic,
		score.Value,
		score.LessonDate,
	)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// InsertAbsence adds an absence entry, used by imports and tests.
func (s *PostgresStore) InsertAbsence(ctx context.Context, absence Absence) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO student_absences (student_id, discipline_name, topic_name, lesson_date)
		 VALUES ($1, $2, $3, $4)`,
		absence.StudentID,
		absence.Subject,
		absence.Topic,
		absence.LessonDate,
	)
	if err != nil {
		return fmt.Errorf("insert absence: %w", err)
	}
	return nil
}

func (s *PostgresStore) Scores(ctx context.Context, studentID int, subject string) ([]Score, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, discipline_name, topic_name, score_numeric, lesson_date
		 FROM student_scores
		 WHERE student_id = $1 AND discipline_name = $2
		 ORDER BY lesson_date ASC`,
		studentID, subject,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var sc Score
		if err := rows.Scan(&sc.StudentID, &sc.Subject, &sc.Topic, &sc.Value, &sc.LessonDate); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return scores, nil
}

func (s *PostgresStore) Absences(ctx context.Context, studentID int, subject string) ([]Absence, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, discipline_name, topic_name, lesson_date
		 FROM student_absences
		 WHERE student_id = $1 AND discipline_name = $2
		 ORDER BY lesson_date ASC`,
		studentID, subject,
	)
	if err != nil {
		return nil, fmt.Errorf("query absences: %w", err)
	}
	defer rows.Close()

	var absences []Absence
	for rows.Next() {
		var a Absence
		if err := rows.Scan(&a.StudentID, &a.Subject, &a.Topic, &a.LessonDate); err != nil {
			return nil, fmt.Errorf("scan absence: %w", err)
		}
		absences = append(absences, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate absences: %w", err)
	}
	return absences, nil
}

func (s *PostgresStore) SubjectTopics(ctx context.Context, subject string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT topic_name
		 FROM student_scores
		 WHERE discipline_name = $1 AND topic_name <> ''
		 ORDER BY topic_name ASC`,
		subject,
	)
	if err != nil {
		return nil, fmt.Errorf("query subject topics: %w", err)
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) ListStudents(ctx context.Context) ([]StudentSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		WITH students AS (
			SELECT student_id FROM student_scores
			UNION
			SELECT student_id FROM student_absences
		)
		SELECT
			st.student_id,
			COALESCE((
				SELECT ARRAY_AGG(DISTINCT d.name ORDER BY d.name)
				FROM (
					SELECT discipline_name AS name FROM student_scores sc WHERE sc.student_id = st.student_id
					UNION
					SELECT discipline_name AS name FROM student_absences ab WHERE ab.student_id = st.student_id
				) d
			), '{}') AS subjects,
			(SELECT COUNT(*) FROM student_scores sc WHERE sc.student_id = st.student_id) AS score_count,
			COALESCE((SELECT AVG(score_numeric) FROM student_scores sc WHERE sc.student_id = st.student_id), 0) AS average_score,
			(SELECT COUNT(*) FROM student_absences ab WHERE ab.student_id = st.student_id) AS absence_count
		FROM students st
		ORDER BY st.student_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var summaries []StudentSummary
	for rows.Next() {
		var sum StudentSummary
		if err := rows.Scan(&sum.StudentID, &sum.Subjects, &sum.ScoreCount, &sum.AverageScore, &sum.AbsenceCount); err != nil {
			return nil, fmt.Errorf("scan student summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return summaries, nil
}
