package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mriia-ai/tutor/internal/ai"
	"github.com/mriia-ai/tutor/internal/profile"
)

// Pipeline sequences the tutoring stages: routing, retrieval, profile,
// lecture, practice with validation, then evaluation and recommendations
// when answers are present. It is stateless and reentrant: every request
// gets its own PipelineState, so concurrent requests never share mutation.
type Pipeline struct {
	router      *TopicRouter
	retriever   *ContextRetriever
	profiles    *profile.Builder // nil disables personalization
	content     *ContentGenerator
	loop        *ValidationLoop
	evaluator   *Evaluator
	recommender *Recommender
	usage       ai.UsageTracker // nil disables tracking
}

// NewPipeline wires the stage components into an orchestrator.
func NewPipeline(
	router *TopicRouter,
	retriever *ContextRetriever,
	profiles *profile.Builder,
	content *ContentGenerator,
	loop *ValidationLoop,
	evaluator *Evaluator,
	recommender *Recommender,
	usage ai.UsageTracker,
) *Pipeline {
	return &Pipeline{
		router:      router,
		retriever:   retriever,
		profiles:    profiles,
		content:     content,
		loop:        loop,
		evaluator:   evaluator,
		recommender: recommender,
		usage:       usage,
	}
}

// Run executes the pipeline for one request. A stage failure short-circuits
// the remaining stages: the returned state carries everything populated so
// far plus the error, never a malformed partial object.
func (p *Pipeline) Run(ctx context.Context, req Request) *PipelineState {
	st := newPipelineState(req)
	defer p.recordUsage(st)

	emit := func(stage Stage, detail string) {
		if req.Progress != nil {
			req.Progress(stage, detail)
		}
	}

	emit(StageRouting, req.Query)
	topics, vector, err := p.router.Route(ctx, req.Query, req.Grade, req.Subject.DisciplineID)
	if err != nil {
		return p.fail(st, err)
	}
	st.MatchedTopics = topics
	st.QueryVector = vector

	if len(topics) == 0 {
		// Terminal, not a crash: there is simply nothing to teach here.
		slog.Info("no topics matched query", "query", req.Query, "grade", req.Grade)
		st.Err = ErrNoContent
		emit(StageDone, "no content")
		return st
	}

	emit(StageRetrieval, topics[0].Title)
	pages, citations, err := p.retriever.Retrieve(ctx, vector, topics)
	if err != nil {
		return p.fail(st, err)
	}
	st.MatchedPages = pages
	st.Citations = citations

	if req.StudentID > 0 && p.profiles != nil {
		emit(StageProfile, "")
		prof, err := p.profiles.Build(ctx, req.StudentID, req.Subject.Name, topics[0].Title)
		if err != nil {
			// Personalization is best-effort: teach without it.
			slog.Warn("profile build failed, continuing unpersonalized",
				"student_id", req.StudentID, "error", err)
		} else {
			st.Profile = prof
		}
	}

	emit(StageLecture, "")
	lecture, controlQuestions, err := p.content.GenerateLecture(ctx, st)
	if err != nil {
		return p.fail(st, err)
	}
	st.LectureContent = lecture
	st.ControlQuestions = controlQuestions

	emit(StagePractice, "")
	emit(StageValidation, "")
	if err := p.loop.Run(ctx, st); err != nil {
		return p.fail(st, err)
	}

	if len(req.StudentAnswers) > 0 {
		emit(StageEvaluation, "")
		results, err := p.evaluator.Evaluate(ctx, st, st.PracticeQuestions, req.StudentAnswers)
		if err != nil {
			return p.fail(st, err)
		}
		st.EvaluationResults = results

		emit(StageRecommend, "")
		st.Recommendations, st.NextTopics = BuildRecommendations(results, st.Profile, st.MatchedTopics)
		st.StudyPlan = p.recommender.StudyPlan(ctx, st)
	}

	emit(StageDone, "")
	return st
}

func (p *Pipeline) fail(st *PipelineState, err error) *PipelineState {
	slog.Error("pipeline stage failed", "error", err)
	st.Err = err
	return st
}

func (p *Pipeline) recordUsage(st *PipelineState) {
	if p.usage == nil || st.StudentID <= 0 {
		return
	}
	id := strconv.Itoa(st.StudentID)
	for name, tokens := range st.TokensByTask {
		task, ok := taskByName(name)
		if !ok {
			continue
		}
		if err := p.usage.Record(id, task, tokens); err != nil {
			slog.Warn("usage tracking failed", "student_id", id, "task", name, "error", err)
		}
	}
}

func taskByName(name string) (ai.TaskType, bool) {
	for _, t := range []ai.TaskType{ai.TaskLecture, ai.TaskPractice, ai.TaskSolving, ai.TaskGrading, ai.TaskRecommend} {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

// ErrDescriptor renders a stable client-facing error string for a pipeline
// state, or "" when the run succeeded.
func ErrDescriptor(st *PipelineState) string {
	if st.Err == nil {
		return ""
	}
	if errors.Is(st.Err, ErrNoContent) {
		return "no matching content: жодна тема не відповідає запиту"
	}
	return fmt.Sprintf("pipeline error: %v", st.Err)
}
