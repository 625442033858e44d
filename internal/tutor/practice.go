package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mriia-ai/tutor/internal/ai"
)

const (
	practiceTemperature = 0.4
	practiceMaxTokens   = 4000
)

// practiceSchema is the contract the short model must emit. Responses that
// fail it become a GenerationError instead of loosely-typed data leaking
// into the pipeline.
const practiceSchema = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["question", "options", "correct_index", "explanation"],
		"properties": {
			"question": {"type": "string", "minLength": 1},
			"options": {
				"type": "array",
				"minItems": 4,
				"maxItems": 4,
				"items": {"type": "string"}
			},
			"correct_index": {"type": "integer", "minimum": 0, "maximum": 3},
			"explanation": {"type": "string"},
			"difficulty": {"type": "string"},
			"topic": {"type": "string"}
		}
	}
}`

var practiceSchemaLoader = gojsonschema.NewStringLoader(practiceSchema)

// PracticeGenerator produces multiple-choice questions with the short model.
type PracticeGenerator struct {
	llm       *ai.Router
	count     int
	minViable int
}

// NewPracticeGenerator creates a practice generator. count is the requested
// question count [8,12]; minViable is the floor after topic filtering below
// which generation is retried once.
func NewPracticeGenerator(llm *ai.Router, count, minViable int) *PracticeGenerator {
	return &PracticeGenerator{llm: llm, count: count, minViable: minViable}
}

// Generate asks the short model for the question set, validates the JSON
// shape, drops questions referencing unknown topics and retries once when
// the filtered set falls below the viable floor. feedback carries validator
// findings on regeneration passes.
func (g *PracticeGenerator) Generate(ctx context.Context, st *PipelineState, feedback string) ([]PracticeQuestion, error) {
	questions, err := g.generateOnce(ctx, st, feedback)
	if err == nil && len(questions) >= g.minViable {
		return questions, nil
	}

	if err != nil {
		slog.Warn("practice generation failed, retrying once", "error", err)
	} else {
		slog.Warn("practice generation below viable count, retrying once",
			"got", len(questions), "min_viable", g.minViable)
	}

	questions, err = g.generateOnce(ctx, st, feedback)
	if err != nil {
		return nil, err
	}
	if len(questions) < g.minViable {
		return nil, &GenerationError{
			Stage: "practice",
			Err:   fmt.Errorf("only %d viable questions after retry, need %d", len(questions), g.minViable),
		}
	}
	return questions, nil
}

func (g *PracticeGenerator) generateOnce(ctx context.Context, st *PipelineState, feedback string) ([]PracticeQuestion, error) {
	resp, err := g.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskPractice,
		Temperature: practiceTemperature,
		MaxTokens:   practiceMaxTokens,
		Messages: []ai.Message{
			{Role: "system", Content: practiceSystemPrompt(st.Subject.Name, st.Grade)},
			{Role: "user", Content: g.practiceUserPrompt(st, feedback)},
		},
	})
	if err != nil {
		return nil, &GenerationError{Stage: "practice", Err: err}
	}
	st.addUsage(ai.TaskPractice.String(), resp.TotalTokens())

	raw, err := parsePracticeJSON(resp.Content)
	if err != nil {
		return nil, &GenerationError{Stage: "practice", Err: err}
	}

	return g.filterByTopic(raw, st), nil
}

// filterByTopic drops questions whose topic reference is not one of the
// matched topics. An empty topic is attributed to the primary topic.
func (g *PracticeGenerator) filterByTopic(raw []PracticeQuestion, st *PipelineState) []PracticeQuestion {
	known := make(map[string]bool, len(st.MatchedTopics))
	primary := ""
	for i, t := range st.MatchedTopics {
		known[strings.ToLower(strings.TrimSpace(t.Title))] = true
		if i == 0 {
			primary = t.Title
		}
	}

	var kept []PracticeQuestion
	for _, q := range raw {
		topic := strings.TrimSpace(q.Topic)
		if topic == "" {
			q.Topic = primary
		} else if !known[strings.ToLower(topic)] {
			slog.Warn("dropping question with unknown topic reference", "topic", topic)
			continue
		}
		q.ID = fmt.Sprintf("q%d", len(kept)+1)
		q.ValidatorIndex = -1
		kept = append(kept, q)
	}
	return kept
}

func practiceSystemPrompt(subject string, grade int) string {
	return fmt.Sprintf(`Ти вчитель %s для %d класу. Ти складаєш тестові питання з чотирма варіантами відповіді.
Відповідай ЛИШЕ валідним JSON без жодного тексту поза ним.`, subject, grade)
}

func (g *PracticeGenerator) practiceUserPrompt(st *PipelineState, feedback string) string {
	var b strings.Builder

	topic := st.Query
	var subtopics []string
	for i, t := range st.MatchedTopics {
		if i == 0 {
			topic = t.Title
			continue
		}
		subtopics = append(subtopics, t.Title)
	}

	fmt.Fprintf(&b, "Згенеруй %d тестових питань з теми %q (%s, %d клас).\n", g.count, topic, st.Subject.Name, st.Grade)
	if len(subtopics) > 0 {
		fmt.Fprintf(&b, "Додаткові теми: %s.\n", strings.Join(subtopics, "; "))
	}

	if st.LectureContent != "" {
		fmt.Fprintf(&b, "\nМАТЕРІАЛ УРОКУ:\n\"\"\"\n%s\n\"\"\"\n", st.LectureContent)
	}

	if st.Profile != nil && st.Profile.PromptInjection != "" {
		fmt.Fprintf(&b, "\nКОНТЕКСТ УЧНЯ:\n%s\n", st.Profile.PromptInjection)
	}

	if feedback != "" {
		fmt.Fprintf(&b, "\n%s\n", feedback)
	}

	b.WriteString(`
ФОРМАТ: JSON-масив обʼєктів:
[{"question": "...", "options": ["...", "...", "...", "..."], "correct_index": 0, "explanation": "...", "difficulty": "easy|medium|hard", "topic": "назва теми"}]

ВИМОГИ:
- Рівно 4 варіанти відповіді на кожне питання.
- correct_index вказує на правильний варіант (0-3).
- Поле topic має бути однією з тем вище.
- Питання лише по наданому матеріалу.`)
	return b.String()
}

// parsePracticeJSON strips code fences, validates the payload against the
// question schema and unmarshals it.
func parsePracticeJSON(content string) ([]PracticeQuestion, error) {
	payload := extractJSONArray(content)
	if payload == "" {
		return nil, fmt.Errorf("no JSON array in model output")
	}

	result, err := gojsonschema.Validate(practiceSchemaLoader, gojsonschema.NewStringLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return nil, fmt.Errorf("schema-invalid output: %s", strings.Join(issues, "; "))
	}

	var questions []PracticeQuestion
	if err := json.Unmarshal([]byte(payload), &questions); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	return questions, nil
}

// extractJSONArray returns the outermost JSON array in the content,
// tolerating markdown code fences around it.
func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
