package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/index"
)

const (
	lectureTemperature = 0.7
	lectureMaxTokens   = 3000

	controlQuestionsHeader = "## Контрольні питання"
)

// ContentGenerator produces the structured lecture with the long-form model.
type ContentGenerator struct {
	llm *ai.Router
}

// NewContentGenerator creates a lecture generator over the model router.
func NewContentGenerator(llm *ai.Router) *ContentGenerator {
	return &ContentGenerator{llm: llm}
}

// GenerateLecture builds the lecture prompt from the retrieved pages and the
// student profile and calls the long-form model. It returns the lecture body
// and the control questions extracted from its final section.
func (g *ContentGenerator) GenerateLecture(ctx context.Context, st *PipelineState) (string, []string, error) {
	if len(st.MatchedPages) == 0 {
		return "", nil, &GenerationError{Stage: "lecture", Err: fmt.Errorf("no retrieved pages to ground the lecture")}
	}

	topic := ""
	if len(st.MatchedTopics) > 0 {
		topic = st.MatchedTopics[0].Title
	}

	injection := ""
	if st.Profile != nil {
		injection = st.Profile.PromptInjection
	}

	resp, err := g.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskLecture,
		Temperature: lectureTemperature,
		MaxTokens:   lectureMaxTokens,
		Messages: []ai.Message{
			{Role: "system", Content: lectureSystemPrompt(st.Subject.Name, st.Grade)},
			{Role: "user", Content: lectureUserPrompt(st.Query, topic, st.Grade, st.Subject.Name, injection, st.MatchedPages)},
		},
	})
	if err != nil {
		return "", nil, &GenerationError{Stage: "lecture", Err: err}
	}
	st.addUsage(ai.TaskLecture.String(), resp.TotalTokens())

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", nil, &GenerationError{Stage: "lecture", Err: fmt.Errorf("model returned empty content")}
	}

	lecture, questions := splitControlQuestions(content)

	slog.Debug("lecture generated",
		"chars", len(lecture),
		"control_questions", len(questions),
	)
	return lecture, questions, nil
}

func lectureSystemPrompt(subject string, grade int) string {
	return fmt.Sprintf(`Ти досвідчений вчитель %s для учнів %d класу української школи.

Твоя роль:
- Пояснювати матеріал чітко, зрозуміло та структуровано
- Використовувати приклади, що відповідають віку учнів
- Дотримуватись навчальної програми України
- Базувати пояснення ЛИШЕ на наданому контексті з підручника

Стиль:
- Використовуй українську мову
- Будь дружнім та підтримуючим
- Уникай надто складної термінології без пояснень`, subject, grade)
}

func lectureUserPrompt(query, topic string, grade int, subject, injection string, pages []index.PageRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Створи структурований конспект уроку для учня %d класу з предмету %q.\n\n", grade, subject)
	fmt.Fprintf(&b, "Запит вчителя: %s\nТема: %s\n", query, topic)
	if injection != "" {
		fmt.Fprintf(&b, "\nКОНТЕКСТ УЧНЯ:\n%s\n", injection)
	}

	b.WriteString("\nКОНТЕКСТ З ПІДРУЧНИКА:\n\"\"\"\n")
	for i, p := range pages {
		fmt.Fprintf(&b, "Документ %d (сторінка %d): %s\n\n", i+1, p.Page, p.Text)
	}
	b.WriteString("\"\"\"\n")

	b.WriteString(`
ВИМОГИ ДО КОНСПЕКТУ:

1. **Вступ** (2-3 речення): чому ця тема важлива і що учень дізнається.
2. **Основний матеріал**: чіткі визначення ключових понять, покрокові пояснення, 2-3 приклади.
3. **Важливо запам'ятати**: головні факти (3-5 пунктів).
4. **Контрольні питання** (2-3 питання різного рівня складності).

ФОРМАТ ВІДПОВІДІ:

## Вступ
[текст вступу]

## Основний матеріал
[детальне пояснення теми]

## Важливо запам'ятати
- [пункт 1]
- [пункт 2]

## Контрольні питання
1. [питання 1]
2. [питання 2]

ВАЖЛИВО: Використовуй ТІЛЬКИ інформацію з наданого контексту. Якщо якоїсь інформації немає - не вигадуй.`)
	return b.String()
}

// splitControlQuestions separates the lecture body from the numbered
// questions under the final control-questions header. Without the header the
// whole response is the lecture.
func splitControlQuestions(content string) (string, []string) {
	idx := strings.LastIndex(content, controlQuestionsHeader)
	if idx < 0 {
		return content, nil
	}

	lecture := strings.TrimSpace(content[:idx])
	section := content[idx+len(controlQuestionsHeader):]

	var questions []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := rune(line[0])
		if (first < '0' || first > '9') && !strings.HasPrefix(line, "-") {
			continue
		}
		q := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-) "))
		if q != "" {
			questions = append(questions, q)
		}
	}
	return lecture, questions
}
