package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/profile"
)

const (
	studyPlanTemperature = 0.6
	studyPlanMaxTokens   = 1000
)

// Recommender assembles the post-evaluation guidance: a deterministic
// threshold-based summary plus an optional generated study plan.
type Recommender struct {
	llm *ai.Router
}

// NewRecommender creates a recommender over the model router.
func NewRecommender(llm *ai.Router) *Recommender {
	return &Recommender{llm: llm}
}

// BuildRecommendations renders the score-band summary, the wrong-question
// digest and the weak-topic reminder, and returns the names of the remaining
// matched topics as next-topic suggestions.
func BuildRecommendations(results []EvaluationResult, prof *profile.StudentProfile, topics []index.TopicRecord) (string, []string) {
	if len(results) == 0 {
		return "", nil
	}

	correct, total := Score(results)
	pct := float64(correct) / float64(total) * 100

	var parts []string
	switch {
	case pct >= 90:
		parts = append(parts,
			fmt.Sprintf("Відмінний результат: %d/%d (%.0f%%)!", correct, total, pct),
			"Ти чудово опанував цю тему. Можеш переходити до наступної.")
	case pct >= 70:
		parts = append(parts,
			fmt.Sprintf("Добрий результат: %d/%d (%.0f%%).", correct, total, pct),
			"Рекомендую повторити деякі моменти перед наступною темою.")
	case pct >= 50:
		parts = append(parts,
			fmt.Sprintf("Середній результат: %d/%d (%.0f%%).", correct, total, pct),
			"Потрібно більше практики з цієї теми.")
	default:
		parts = append(parts,
			fmt.Sprintf("Потребує уваги: %d/%d (%.0f%%).", correct, total, pct),
			"Рекомендую перечитати матеріал та спробувати знову.")
	}

	var wrong []EvaluationResult
	for _, r := range results {
		if !r.IsCorrect {
			wrong = append(wrong, r)
		}
	}
	if len(wrong) > 0 {
		parts = append(parts, "", fmt.Sprintf("Помилки у %d питаннях:", len(wrong)))
		for i, r := range wrong {
			if i == 3 {
				parts = append(parts, fmt.Sprintf("   ... та ще %d", len(wrong)-3))
				break
			}
			parts = append(parts, fmt.Sprintf("   %d. %s", i+1, truncate(r.QuestionText, 50)))
		}
	}

	if prof != nil && len(prof.WeakTopics) > 0 {
		weak := prof.WeakTopics
		if len(weak) > 2 {
			weak = weak[:2]
		}
		parts = append(parts, "", fmt.Sprintf("Також зверни увагу на: %s", strings.Join(weak, ", ")))
	}

	// The primary topic was just studied; suggest the runners-up.
	var next []string
	for i := 1; i < len(topics) && i < 4; i++ {
		if topics[i].Title != "" {
			next = append(next, topics[i].Title)
		}
	}

	return strings.Join(parts, "\n"), next
}

// StudyPlan asks the long-form model for a short prioritized study plan
// grounded in the student's profile. Failures degrade to an empty plan: the
// deterministic recommendations are already in the response.
func (r *Recommender) StudyPlan(ctx context.Context, st *PipelineState) string {
	if st.Profile == nil || st.Profile.Scope == profile.ScopeNewStudent {
		return ""
	}

	prompt := fmt.Sprintf(`Склади короткий план повторення для учня %d класу з предмету %q.

ПРОФІЛЬ УЧНЯ:
%s

РЕЗУЛЬТАТ ТЕСТУ:
%s

Дай 3-5 конкретних кроків українською, від найважливішого.`,
		st.Grade, st.Subject.Name, st.Profile.PromptInjection, st.Recommendations)

	resp, err := r.llm.Complete(ctx, ai.CompletionRequest{
		Task:        ai.TaskRecommend,
		Temperature: studyPlanTemperature,
		MaxTokens:   studyPlanMaxTokens,
		Messages:    []ai.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		slog.Warn("study plan generation failed", "error", err)
		return ""
	}
	st.addUsage(ai.TaskRecommend.String(), resp.TotalTokens())
	return strings.TrimSpace(resp.Content)
}
