package tutor

import (
	"strings"
	"testing"
)

func TestSplitControlQuestions(t *testing.T) {
	content := `## Вступ
Тема важлива.

## Основний матеріал
Означення та приклади.

## Важливо запам'ятати
- факт 1

## Контрольні питання
1. Що таке підмет?
2. Наведи приклад.
- Додаткове питання`

	lecture, questions := splitControlQuestions(content)

	if strings.Contains(lecture, "Контрольні питання") {
		t.Error("lecture still contains the control-questions section")
	}
	if !strings.Contains(lecture, "Основний матеріал") {
		t.Error("lecture lost its body")
	}
	want := []string{"Що таке підмет?", "Наведи приклад.", "Додаткове питання"}
	if len(questions) != len(want) {
		t.Fatalf("got %d control questions, want %d: %v", len(questions), len(want), questions)
	}
	for i := range want {
		if questions[i] != want[i] {
			t.Errorf("question[%d] = %q, want %q", i, questions[i], want[i])
		}
	}
}

func TestSplitControlQuestions_NoSection(t *testing.T) {
	lecture, questions := splitControlQuestions("Просто текст без розділів.")
	if lecture != "Просто текст без розділів." {
		t.Errorf("lecture = %q, want the full content", lecture)
	}
	if questions != nil {
		t.Errorf("questions = %v, want nil", questions)
	}
}

func TestParsePracticeJSON(t *testing.T) {
	content := "```json\n" + `[
		{"question": "2+2?", "options": ["4", "5", "6", "7"], "correct_index": 0, "explanation": "арифметика", "difficulty": "easy", "topic": "Числа"}
	]` + "\n```"

	questions, err := parsePracticeJSON(content)
	if err != nil {
		t.Fatalf("parsePracticeJSON() error = %v", err)
	}
	if len(questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(questions))
	}
	q := questions[0]
	if q.Question != "2+2?" || q.CorrectIndex != 0 || len(q.Options) != 4 || q.Topic != "Числа" {
		t.Errorf("parsed question = %+v", q)
	}
}

func TestParsePracticeJSON_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json", "вибачте, не можу"},
		{"three options", `[{"question": "q", "options": ["а", "б", "в"], "correct_index": 0, "explanation": "e"}]`},
		{"index out of range", `[{"question": "q", "options": ["а", "б", "в", "г"], "correct_index": 4, "explanation": "e"}]`},
		{"missing explanation", `[{"question": "q", "options": ["а", "б", "в", "г"], "correct_index": 0}]`},
		{"empty array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parsePracticeJSON(tt.content); err == nil {
				t.Errorf("parsePracticeJSON(%q) = nil error, want schema error", tt.content)
			}
		})
	}
}

func TestEvalExpression(t *testing.T) {
	tests := []struct {
		code string
		want float64
	}{
		{"2 + 2", 4},
		{"(3 + 5) * 2", 16},
		{"10 / 4", 2.5},
		{"-7 + 3", -4},
	}

	for _, tt := range tests {
		got, err := evalExpression(tt.code)
		if err != nil {
			t.Errorf("evalExpression(%q) error = %v", tt.code, err)
			continue
		}
		if got != tt.want {
			t.Errorf("evalExpression(%q) = %g, want %g", tt.code, got, tt.want)
		}
	}
}

func TestEvalExpression_Invalid(t *testing.T) {
	for _, code := range []string{"не вираз", "2 +", `"текст"`} {
		if _, err := evalExpression(code); err == nil {
			t.Errorf("evalExpression(%q) = nil error, want failure", code)
		}
	}
}

func TestMatchNumericOption(t *testing.T) {
	options := []string{"x = 4", "5", "2,5 см", "немає розв'язку"}

	tests := []struct {
		value float64
		want  int
	}{
		{4, 0},
		{5, 1},
		{2.5, 2},
		{99, -1},
	}
	for _, tt := range tests {
		if got := matchNumericOption(tt.value, options); got != tt.want {
			t.Errorf("matchNumericOption(%g) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseAnswerLetter(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"Б", 1},
		{"Відповідь: Г", 3},
		{"The answer is C", 2},
		{"  А  ", 0},
		{"жодної літери тут немає", -1},
		// The letter after the marker wins over later conjunctions.
		{"Відповідь: А, а не Б", 0},
		{"Правильна відповідь: Б, а не В", 1},
		// Without a marker, lowercase а/в after a candidate are words.
		{"Б, а точніше В", 2},
		{"а", 0},
	}

	for _, tt := range tests {
		if got := parseAnswerLetter(tt.content); got != tt.want {
			t.Errorf("parseAnswerLetter(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func TestParseGrading(t *testing.T) {
	credit, feedback := parseGrading("0.5\nНепогано, але неповно.")
	if credit != 0.5 {
		t.Errorf("credit = %g, want 0.5", credit)
	}
	if feedback != "Непогано, але неповно." {
		t.Errorf("feedback = %q", feedback)
	}

	credit, feedback = parseGrading("я не можу це оцінити")
	if credit != 0 {
		t.Errorf("credit = %g, want 0 on parse failure", credit)
	}
	if feedback == "" {
		t.Error("feedback should keep the raw reply on parse failure")
	}

	if credit, _ = parseGrading("1,0\nЧудово"); credit != 1.0 {
		t.Errorf("credit = %g, want decimal comma accepted", credit)
	}

	if credit, _ = parseGrading("2.0\nпоза шкалою"); credit != 0 {
		t.Errorf("credit = %g, want out-of-range treated as parse failure", credit)
	}
}

func TestNormalizeAnswer(t *testing.T) {
	if normalizeAnswer("  Рівняння  ") != normalizeAnswer("рівняння") {
		t.Error("case fold or trim failed")
	}
	// The letter й in composed and decomposed forms.
	if normalizeAnswer("\u0439") != normalizeAnswer("\u0438\u0306") {
		t.Error("NFC normalization failed")
	}
}
