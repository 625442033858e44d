package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/mriia-ai/tutor/internal/ai"
)

const (
	gradingTemperature = 0.2
	gradingMaxTokens   = 400
)

// Evaluator checks student answers against the generated question set.
type Evaluator struct {
	llm *ai.Router
}

// NewEvaluator creates an answer evaluator over the model router.
func NewEvaluator(llm *ai.Router) *Evaluator {
	return &Evaluator{llm: llm}
}

// Evaluate pairs answers to questions positionally. A count mismatch is an
// InputShapeError and yields no partial results. Answers matching the
// correct letter or option text after normalization score full credit;
// other free-text answers are graded by the short model for partial credit.
func (e *Evaluator) Evaluate(ctx context.Context, st *PipelineState, questions []PracticeQuestion, answers []string) ([]EvaluationResult, error) {
	if len(answers) != len(questions) {
		return nil, &InputShapeError{
			Msg: fmt.Sprintf("got %d answers for %d questions", len(answers), len(questions)),
		}
	}

	results := make([]EvaluationResult, 0, len(questions))
	for i, q := range questions {
		answer := answers[i]
		res := EvaluationResult{
			QuestionIndex: i,
			QuestionText:  truncate(q.Question, 100),
			StudentAnswer: answer,
			CorrectAnswer: q.CorrectLetter(),
		}

		if exactMatch(answer, q) {
			res.IsCorrect = true
			res.Credit = 1.0
		} else if isLetterAnswer(answer) || strings.TrimSpace(answer) == "" {
			// A wrong letter pick gets no partial credit, just the
			// explanation as feedback.
			res.Feedback = q.Explanation
		} else {
			credit, feedback, tokens := e.gradeFreeText(ctx, q, answer)
			st.addUsage(ai.TaskGrading.String(), tokens)
			res.Credit = credit
			res.Feedback = feedback
			if res.Feedback == "" {
				res.Feedback = q.Explanation
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// exactMatch reports whether the answer names the correct option, either by
// letter or by full option text.
func exactMatch(answer string, q PracticeQuestion) bool {
	got := normalizeAnswer(answer)
	if got == "" {
		return false
	}
	if got == normalizeAnswer(q.CorrectLetter()) {
		return true
	}
	// Latin letters on a Ukrainian keyboardless client.
	latin := []string{"a", "b", "c", "d"}
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(latin) && got == latin[q.CorrectIndex] {
		return true
	}
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		return got == normalizeAnswer(q.Options[q.CorrectIndex])
	}
	return false
}

// normalizeAnswer canonicalizes Unicode (NFC) and case-folds, so answers
// differing only in composition or case compare equal.
func normalizeAnswer(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// isLetterAnswer reports whether the answer is a bare option letter.
func isLetterAnswer(s string) bool {
	s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".)"))
	if len([]rune(s)) != 1 {
		return false
	}
	switch strings.ToUpper(s) {
	case "А", "Б", "В", "Г", "A", "B", "C", "D":
		return true
	}
	return false
}

// gradeFreeText asks the short model for a partial-credit fraction and
// feedback. An unparseable reply scores 0.0 with the raw reply as feedback.
func (e *Evaluator) gradeFreeText(ctx context.Context, q PracticeQuestion, answer string) (float64, string, int) {
	correct := ""
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		correct = q.Options[q.CorrectIndex]
	}

	prompt := fmt.Sprintf(`Оціни відповідь учня.

ПИТАННЯ: %s
ПРАВИЛЬНА ВІДПОВІДЬ: %s
ВІДПОВІДЬ УЧНЯ: %s

Перший рядок: число від 0 до 1 (частка правильності).
Другий рядок: короткий відгук українською.`, q.Question, correct, answer)

	resp, err := e.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskGrading,
		Temperature: gradingTemperature,
		MaxTokens:   gradingMaxTokens,
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		slog.Warn("free-text grading failed", "error", err)
		return 0, "", 0
	}

	credit, feedback := parseGrading(resp.Content)
	return credit, feedback, resp.TotalTokens()
}

// parseGrading reads the credit fraction from the first line and the
// feedback from the rest.
func parseGrading(content string) (float64, string) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	raw := strings.ReplaceAll(strings.TrimSpace(lines[0]), ",", ".")

	credit, err := strconv.ParseFloat(raw, 64)
	if err != nil || credit < 0 || credit > 1 {
		return 0, strings.TrimSpace(content)
	}

	feedback := ""
	if len(lines) > 1 {
		feedback = strings.TrimSpace(lines[1])
	}
	return credit, feedback
}

// Score sums earned credit over the result list. Full-credit answers count
// as correct for the percentage.
func Score(results []EvaluationResult) (correct, total int) {
	for _, r := range results {
		if r.IsCorrect {
			correct++
		}
	}
	return correct, len(results)
}
