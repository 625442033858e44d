package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"

	"github.com/mriia-ai/tutor/internal/ai"
)

// ValidationState is the solve/validate state machine state for one
// question set.
type ValidationState string

const (
	StatePending   ValidationState = "PENDING"
	StateSolving   ValidationState = "SOLVING"
	StateValid     ValidationState = "VALID"
	StateInvalid   ValidationState = "INVALID"
	StateExhausted ValidationState = "EXHAUSTED"
)

const (
	solveTemperature = 0.0
	solveMaxTokens   = 300

	// numericTolerance bounds the float comparison between an evaluated
	// expression and an option value.
	numericTolerance = 1e-9

	// algebraMarker selects subjects with a deterministic solving path.
	algebraMarker = "алгебра"
)

// DeterministicSubject reports whether questions for the subject can be
// checked by evaluating an arithmetic expression instead of trusting a
// model's self-check.
func DeterministicSubject(subject string) bool {
	return strings.Contains(strings.ToLower(subject), algebraMarker)
}

// Validator independently solves practice questions. Algebra questions go
// through the expression engine; other subjects get a letter answer from the
// short model.
type Validator struct {
	llm *ai.Router
}

// NewValidator creates a validator over the model router.
func NewValidator(llm *ai.Router) *Validator {
	return &Validator{llm: llm}
}

// Validate solves every question in the set and compares against the
// declared correct answers. Subjects without a deterministic path are not
// validated: their sets pass as-is. An empty set never passes.
func (v *Validator) Validate(ctx context.Context, st *PipelineState, questions []PracticeQuestion) ([]ValidationResult, bool) {
	if len(questions) == 0 {
		return nil, false
	}
	if !DeterministicSubject(st.Subject.Name) {
		slog.Debug("validation skipped for subject", "subject", st.Subject.Name)
		return nil, true
	}

	allValid := true
	results := make([]ValidationResult, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		res := ValidationResult{
			QuestionIndex:  i,
			ExpectedIndex:  q.CorrectIndex,
			ValidatorIndex: -1,
		}

		idx, tokens, err := v.Solve(ctx, q.Question, q.Options, true)
		st.addUsage(ai.TaskSolving.String(), tokens)
		if err != nil {
			res.Error = err.Error()
			allValid = false
		} else {
			res.ValidatorIndex = idx
			res.IsValid = idx == q.CorrectIndex
			q.IsValidated = true
			q.ValidatorIndex = idx
			if !res.IsValid {
				allValid = false
			}
		}
		results = append(results, res)
	}
	return results, allValid
}

// Solve independently answers one multiple-choice question and returns the
// chosen option index plus the gateway tokens spent. With deterministic set,
// the short model emits a bare arithmetic expression that is evaluated
// locally and matched against the options; otherwise the model picks a
// letter directly.
func (v *Validator) Solve(ctx context.Context, question string, options []string, deterministic bool) (int, int, error) {
	if deterministic {
		return v.solveExpression(ctx, question, options)
	}
	return v.solveLetter(ctx, question, options)
}

func (v *Validator) solveExpression(ctx context.Context, question string, options []string) (int, int, error) {
	resp, err := v.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskSolving,
		Temperature: solveTemperature,
		MaxTokens:   solveMaxTokens,
		Messages: []ai.Message{
			{Role: "user", Content: expressionPrompt(question, options)},
		},
	})
	if err != nil {
		return -1, 0, fmt.Errorf("solver call: %w", err)
	}
	tokens := resp.TotalTokens()

	code := extractExpression(resp.Content)
	if code != "" {
		if value, err := evalExpression(code); err == nil {
			if idx := matchNumericOption(value, options); idx >= 0 {
				return idx, tokens, nil
			}
		} else {
			slog.Debug("expression evaluation failed", "code", code, "error", err)
		}
	}

	// The model answered with a letter instead of an expression.
	if idx := parseAnswerLetter(resp.Content); idx >= 0 && idx < len(options) {
		return idx, tokens, nil
	}
	return -1, tokens, fmt.Errorf("no answer derivable from solver output %q", strings.TrimSpace(resp.Content))
}

func (v *Validator) solveLetter(ctx context.Context, question string, options []string) (int, int, error) {
	resp, err := v.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskSolving,
		Temperature: solveTemperature,
		MaxTokens:   solveMaxTokens,
		Messages: []ai.Message{
			{Role: "user", Content: letterPrompt(question, options)},
		},
	})
	if err != nil {
		return -1, 0, fmt.Errorf("solver call: %w", err)
	}
	tokens := resp.TotalTokens()

	idx := parseAnswerLetter(resp.Content)
	if idx < 0 || idx >= len(options) {
		return -1, tokens, fmt.Errorf("no answer letter in solver output %q", strings.TrimSpace(resp.Content))
	}
	return idx, tokens, nil
}

func expressionPrompt(question string, options []string) string {
	var b strings.Builder
	b.WriteString("Розв'яжи задачу.\n\nЗАДАЧА: ")
	b.WriteString(question)
	b.WriteString("\n\nВАРІАНТИ:\n")
	for i, o := range options {
		fmt.Fprintf(&b, "%s) %s\n", answerLetters[i], o)
	}
	b.WriteString("\nПоверни ЛИШЕ арифметичний вираз, який обчислює відповідь. Без тексту і пояснень.\n")
	b.WriteString("Якщо відповідь не число, поверни лише літеру правильного варіанта (А, Б, В або Г).")
	return b.String()
}

func letterPrompt(question string, options []string) string {
	var b strings.Builder
	b.WriteString("Обери правильну відповідь.\n\nПИТАННЯ: ")
	b.WriteString(question)
	b.WriteString("\n\nВАРІАНТИ:\n")
	for i, o := range options {
		fmt.Fprintf(&b, "%s) %s\n", answerLetters[i], o)
	}
	b.WriteString("\nПоверни лише одну літеру: А, Б, В або Г.")
	return b.String()
}

// extractExpression returns the first non-empty line of the model output
// with markdown fences stripped.
func extractExpression(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "`"))
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		return line
	}
	return ""
}

// evalExpression evaluates an arithmetic expression in the sandboxed
// expression engine. No environment is exposed, so only literals and
// operators are available.
func evalExpression(code string) (float64, error) {
	program, err := expr.Compile(code)
	if err != nil {
		return 0, fmt.Errorf("compile: %w", err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}
	switch n := out.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("non-numeric result %T", out)
	}
}

// matchNumericOption finds the option whose numeric value equals the
// evaluated answer, or -1 when none does.
func matchNumericOption(value float64, options []string) int {
	for i, o := range options {
		n, ok := parseNumeric(o)
		if ok && math.Abs(n-value) < numericTolerance {
			return i
		}
	}
	return -1
}

// parseNumeric extracts the first number from an option string, accepting a
// decimal comma.
func parseNumeric(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	for _, f := range fields {
		if n, err := strconv.ParseFloat(strings.Trim(f, "."), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

var answerLetterIndex = map[string]int{
	"А": 0, "Б": 1, "В": 2, "Г": 3,
	"A": 0, "B": 1, "C": 2, "D": 3,
}

// parseAnswerLetter finds the answer letter in model output and maps it to
// an option index. The first letter after an "Відповідь" marker wins, so
// "Відповідь: А, а не Б" resolves to А. Without a marker the last standalone
// letter counts, except the lowercase conjunctions а/в once a candidate
// exists.
func parseAnswerLetter(content string) int {
	// Ukrainian upper/lowercase pairs keep their UTF-8 width, so the byte
	// index into the lowered copy is valid in the original.
	if i := strings.LastIndex(strings.ToLower(content), "відповідь"); i >= 0 {
		if idx := firstAnswerLetter(content[i:]); idx >= 0 {
			return idx
		}
	}

	answer := -1
	for _, tok := range letterTokens(content) {
		if answer >= 0 && (tok == "а" || tok == "в") {
			continue
		}
		if idx, ok := answerLetterIndex[strings.ToUpper(tok)]; ok {
			answer = idx
		}
	}
	return answer
}

func firstAnswerLetter(s string) int {
	for _, tok := range letterTokens(s) {
		if idx, ok := answerLetterIndex[strings.ToUpper(tok)]; ok {
			return idx
		}
	}
	return -1
}

func letterTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// ValidationLoop drives the bounded solve/validate/regenerate cycle over
// one question set.
type ValidationLoop struct {
	generator        *PracticeGenerator
	validator        *Validator
	maxRegenerations int
}

// NewValidationLoop wires the generator and validator with the regeneration
// bound.
func NewValidationLoop(generator *PracticeGenerator, validator *Validator, maxRegenerations int) *ValidationLoop {
	return &ValidationLoop{
		generator:        generator,
		validator:        validator,
		maxRegenerations: maxRegenerations,
	}
}

// Run generates the question set and validates it, regenerating the whole
// set on mismatches until it passes or the regeneration budget is spent.
// An exhausted budget is not an error: the last set is kept with
// ValidationPassed=false so the caller can still serve it with a warning.
func (l *ValidationLoop) Run(ctx context.Context, st *PipelineState) error {
	state := StatePending
	slog.Debug("validation state", "state", string(state))

	questions, err := l.generator.Generate(ctx, st, "")
	if err != nil {
		return err
	}
	st.PracticeQuestions = questions

	state = StateSolving
	for {
		slog.Debug("validation state", "state", string(state), "regenerations", st.RegenerationCount)

		results, allValid := l.validator.Validate(ctx, st, st.PracticeQuestions)
		st.ValidationResults = results

		if allValid {
			state = StateValid
			st.ValidationPassed = true
			slog.Debug("validation state", "state", string(state))
			return nil
		}

		if st.RegenerationCount >= l.maxRegenerations {
			state = StateExhausted
			st.ValidationPassed = false
			slog.Warn("validation budget exhausted, returning questions as-is",
				"state", string(state),
				"regenerations", st.RegenerationCount,
				"questions", len(st.PracticeQuestions),
			)
			return nil
		}

		state = StateInvalid
		slog.Debug("validation state", "state", string(state), "mismatches", countInvalid(results))

		feedback := buildValidationFeedback(st.PracticeQuestions, results)
		questions, err := l.generator.Generate(ctx, st, feedback)
		if err != nil {
			return err
		}
		st.PracticeQuestions = questions
		st.RegenerationCount++
		state = StateSolving
	}
}

func countInvalid(results []ValidationResult) int {
	n := 0
	for _, r := range results {
		if !r.IsValid {
			n++
		}
	}
	return n
}

// buildValidationFeedback summarizes mismatches for the regeneration prompt.
func buildValidationFeedback(questions []PracticeQuestion, results []ValidationResult) string {
	var lines []string
	for _, r := range results {
		if r.IsValid {
			continue
		}
		if r.QuestionIndex >= len(questions) {
			continue
		}
		q := questions[r.QuestionIndex]
		if r.Error != "" {
			lines = append(lines, fmt.Sprintf("- Питання %d (%q): не вдалося перевірити (%s).",
				r.QuestionIndex+1, truncate(q.Question, 80), r.Error))
			continue
		}
		lines = append(lines, fmt.Sprintf("- Питання %d (%q): позначено правильним варіант %s, але розв'язок дає %s.",
			r.QuestionIndex+1, truncate(q.Question, 80), indexLetter(r.ExpectedIndex), indexLetter(r.ValidatorIndex)))
	}
	if len(lines) == 0 {
		return ""
	}
	return "ПОПЕРЕДНЯ СПРОБА МІСТИЛА ПОМИЛКИ:\n" + strings.Join(lines, "\n") +
		"\nЗгенеруй новий набір питань з КОРЕКТНИМИ відповідями."
}

func indexLetter(idx int) string {
	if idx < 0 || idx >= len(answerLetters) {
		return "?"
	}
	return answerLetters[idx]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
