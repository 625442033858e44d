package tutor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/profile"
	"github.com/mriia-ai/tutor/internal/tutor"
)

func evalResults(correct, wrong int) []tutor.EvaluationResult {
	var results []tutor.EvaluationResult
	for i := 0; i < correct; i++ {
		results = append(results, tutor.EvaluationResult{QuestionIndex: i, IsCorrect: true})
	}
	for i := 0; i < wrong; i++ {
		results = append(results, tutor.EvaluationResult{
			QuestionIndex: correct + i,
			QuestionText:  "Питання з помилкою",
		})
	}
	return results
}

func TestBuildRecommendations_ScoreBands(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		wrong   int
		want    string
	}{
		{"excellent", 9, 1, "Відмінний результат: 9/10 (90%)"},
		{"good", 7, 3, "Добрий результат: 7/10 (70%)"},
		{"average", 5, 5, "Середній результат: 5/10 (50%)"},
		{"weak", 2, 8, "Потребує уваги: 2/10 (20%)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, _ := tutor.BuildRecommendations(evalResults(tt.correct, tt.wrong), nil, nil)
			if !strings.Contains(text, tt.want) {
				t.Errorf("recommendations = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestBuildRecommendations_WrongDigestAndWeakTopics(t *testing.T) {
	prof := &profile.StudentProfile{
		WeakTopics: []string{"Дієприкметник", "Лексика", "Фонетика"},
	}

	text, _ := tutor.BuildRecommendations(evalResults(3, 5), prof, nil)

	if !strings.Contains(text, "Помилки у 5 питаннях:") {
		t.Errorf("recommendations = %q, want wrong-question digest", text)
	}
	if !strings.Contains(text, "... та ще 2") {
		t.Errorf("recommendations = %q, want overflow marker after 3 listed questions", text)
	}
	if !strings.Contains(text, "Дієприкметник, Лексика") {
		t.Errorf("recommendations = %q, want first two weak topics", text)
	}
	if strings.Contains(text, "Фонетика") {
		t.Error("weak-topic reminder must cap at two topics")
	}
}

func TestBuildRecommendations_NextTopics(t *testing.T) {
	topics := []index.TopicRecord{
		{Title: "Основна тема"},
		{Title: "Друга тема"},
		{Title: "Третя тема"},
		{Title: "Четверта тема"},
		{Title: "Пʼята тема"},
	}

	_, next := tutor.BuildRecommendations(evalResults(5, 0), nil, topics)

	want := []string{"Друга тема", "Третя тема", "Четверта тема"}
	if len(next) != len(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
	for i := range want {
		if next[i] != want[i] {
			t.Errorf("next[%d] = %q, want %q", i, next[i], want[i])
		}
	}
}

func TestBuildRecommendations_Empty(t *testing.T) {
	text, next := tutor.BuildRecommendations(nil, nil, nil)
	if text != "" || next != nil {
		t.Errorf("BuildRecommendations(nil) = %q, %v; want empty", text, next)
	}
}

func TestRecommender_StudyPlan(t *testing.T) {
	provider := ai.NewMockProvider("1. Повтори відмінки.\n2. Зроби вправи.")
	r := tutor.NewRecommender(ai.NewRouter(provider, "lapa", "mamay"))

	st := &tutor.PipelineState{
		Grade:   9,
		Subject: ukrainian,
		Profile: &profile.StudentProfile{
			Scope:           profile.ScopeSubjectFallback,
			PromptInjection: "СТАТУС: Учень СЕРЕДНЬОГО рівня.",
		},
		Recommendations: "Добрий результат: 7/10 (70%).",
	}

	plan := r.StudyPlan(context.Background(), st)
	if plan == "" {
		t.Fatal("StudyPlan() returned empty")
	}
	if provider.LastRequest.Task != ai.TaskRecommend {
		t.Errorf("task = %v, want TaskRecommend", provider.LastRequest.Task)
	}
}

func TestRecommender_StudyPlanSkipsNewStudents(t *testing.T) {
	provider := ai.NewMockProvider("план")
	r := tutor.NewRecommender(ai.NewRouter(provider, "lapa", "mamay"))

	st := &tutor.PipelineState{
		Profile: &profile.StudentProfile{Scope: profile.ScopeNewStudent},
	}
	if plan := r.StudyPlan(context.Background(), st); plan != "" {
		t.Errorf("StudyPlan() = %q, want empty for a new student", plan)
	}
	if provider.CallCount != 0 {
		t.Error("model called for a new student")
	}

	st.Profile = nil
	if plan := r.StudyPlan(context.Background(), st); plan != "" {
		t.Errorf("StudyPlan() = %q, want empty without a profile", plan)
	}
}
