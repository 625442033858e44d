package records_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mriia-ai/tutor/internal/records"
)

func writeTestWorkbook(t *testing.T, scores [][]any, absences [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", "Scores")
	headers := []any{"student_id", "discipline_name", "topic_name", "score_numeric", "lesson_date"}
	f.SetSheetRow("Scores", "A1", &headers)
	for i, row := range scores {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		f.SetSheetRow("Scores", cell, &row)
	}

	if absences != nil {
		f.NewSheet("Absences")
		absHeaders := []any{"student_id", "discipline_name", "topic_name", "lesson_date"}
		f.SetSheetRow("Absences", "A1", &absHeaders)
		for i, row := range absences {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			f.SetSheetRow("Absences", cell, &row)
		}
	}

	path := filepath.Join(t.TempDir(), "journal.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	return path
}

func TestLoadWorkbook(t *testing.T) {
	path := writeTestWorkbook(t,
		[][]any{
			{"1", "Алгебра", "Квадратні рівняння", "9", "2026-03-10"},
			{"1", "Алгебра", "Лінійні рівняння", "5.5", "2026-02-01"},
			{"2", "Історія України", "Козаччина", "11", "2026-03-01"},
		},
		[][]any{
			{"1", "Алгебра", "Теорема Вієта", "2026-02-15"},
		},
	)

	store, err := records.LoadWorkbook(path)
	if err != nil {
		t.Fatalf("LoadWorkbook() error = %v", err)
	}

	scores, err := store.Scores(context.Background(), 1, "Алгебра")
	if err != nil {
		t.Fatalf("Scores() error = %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("len(scores) = %d, want 2", len(scores))
	}
	if scores[1].Value != 9 {
		t.Errorf("newest score = %g, want 9", scores[1].Value)
	}

	absences, err := store.Absences(context.Background(), 1, "Алгебра")
	if err != nil {
		t.Fatalf("Absences() error = %v", err)
	}
	if len(absences) != 1 {
		t.Errorf("len(absences) = %d, want 1", len(absences))
	}
}

func TestLoadWorkbook_SkipsBadRows(t *testing.T) {
	path := writeTestWorkbook(t,
		[][]any{
			{"1", "Алгебра", "Квадратні рівняння", "9", "2026-03-10"},
			{"not-a-number", "Алгебра", "Лінійні рівняння", "5", "2026-02-01"},
			{"2", "Алгебра", "Функції", "abc", "2026-02-01"},
		},
		nil,
	)

	store, err := records.LoadWorkbook(path)
	if err != nil {
		t.Fatalf("LoadWorkbook() error = %v", err)
	}

	summaries, err := store.ListStudents(context.Background())
	if err != nil {
		t.Fatalf("ListStudents() error = %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("len(summaries) = %d, want 1 (bad rows skipped)", len(summaries))
	}
	if summaries[0].ScoreCount != 1 {
		t.Errorf("ScoreCount = %d, want 1", summaries[0].ScoreCount)
	}
}

func TestLoadWorkbook_MissingFile(t *testing.T) {
	if _, err := records.LoadWorkbook("/nonexistent/journal.xlsx"); err == nil {
		t.Fatal("LoadWorkbook() should return error for missing file")
	}
}

func TestLoadWorkbook_MissingAbsencesSheet(t *testing.T) {
	path := writeTestWorkbook(t,
		[][]any{
			{"1", "Алгебра", "Квадратні рівняння", "9", "2026-03-10"},
		},
		nil,
	)

	store, err := records.LoadWorkbook(path)
	if err != nil {
		t.Fatalf("LoadWorkbook() error = %v (absences sheet is optional)", err)
	}

	absences, err := store.Absences(context.Background(), 1, "Алгебра")
	if err != nil {
		t.Fatalf("Absences() error = %v", err)
	}
	if len(absences) != 0 {
		t.Errorf("len(absences) = %d, want 0", len(absences))
	}
}
