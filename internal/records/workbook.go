package records

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	scoresSheet   = "Scores"
	absencesSheet = "Absences"
	dateLayout    = "2006-01-02"
)

// LoadWorkbook reads a journal export (.xlsx) into a MemoryStore. The
// Scores sheet needs columns student_id, discipline_name, topic_name,
// score_numeric, lesson_date; the Absences sheet the same minus the score.
// Rows that fail to parse are skipped with a warning.
func LoadWorkbook(path string) (*MemoryStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	store := NewMemoryStore()

	scoreRows, err := f.GetRows(scoresSheet)
	if err != nil {
		return nil, fmt.Errorf("reading %s sheet: %w", scoresSheet, err)
	}
	loaded, skipped := 0, 0
	for i, row := range scoreRows {
		if i == 0 {
			continue // header
		}
		score, err := parseScoreRow(row)
		if err != nil {
			slog.Warn("skipping score row", "row", i+1, "error", err)
			skipped++
			continue
		}
		store.AddScore(score)
		loaded++
	}

	absenceRows, err := f.GetRows(absencesSheet)
	if err != nil {
		// The absences sheet is optional.
		slog.Warn("workbook has no absences sheet", "path", path)
		absenceRows = nil
	}
	for i, row := range absenceRows {
		if i == 0 {
			continue
		}
		absence, err := parseAbsenceRow(row)
		if err != nil {
			slog.Warn("skipping absence row", "row", i+1, "error", err)
			skipped++
			continue
		}
		store.AddAbsence(absence)
		loaded++
	}

	slog.Info("journal workbook loaded", "path", path, "rows", loaded, "skipped", skipped)
	return store, nil
}

func parseScoreRow(row []string) (Score, error) {
	if len(row) < 5 {
		return Score{}, fmt.Errorf("want 5 columns, got %d", len(row))
	}

	studentID, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return Score{}, fmt.Errorf("student_id %q: %w", row[0], err)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
	if err != nil {
		return Score{}, fmt.Errorf("score_numeric %q: %w", row[3], err)
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(row[4]))
	if err != nil {
		return Score{}, fmt.Errorf("lesson_date %q: %w", row[4], err)
	}

	return Score{
		StudentID:  studentID,
		Subject:    strings.TrimSpace(row[1]),
		Topic:      strings.TrimSpace(row[2]),
		Value:      value,
		LessonDate: date,
	}, nil
}

func parseAbsenceRow(row []string) (Absence, error) {
	if len(row) < 4 {
		return Absence{}, fmt.Errorf("want 4 columns, got %d", len(row))
	}

	studentID, err := strconv.Atoi(strings.TrimSpace(row[0]))
	if err != nil {
		return Absence{}, fmt.Errorf("student_id %q: %w", row[0], err)
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(row[3]))
	if err != nil {
		return Absence{}, fmt.Errorf("lesson_date %q: %w", row[3], err)
	}

	return Absence{
		StudentID:  studentID,
		Subject:    strings.TrimSpace(row[1]),
		Topic:      strings.TrimSpace(row[2]),
		LessonDate: date,
	}, nil
}
