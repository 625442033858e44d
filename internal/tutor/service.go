package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mriia-ai/tutor/internal/curriculum"
	"github.com/mriia-ai/tutor/internal/profile"
	"github.com/mriia-ai/tutor/internal/records"
)

// QueryRequest is the transport-level tutoring request.
type QueryRequest struct {
	Query          string   `json:"query"`
	Grade          int      `json:"grade"`
	Subject        string   `json:"subject"`
	StudentID      int      `json:"student_id,omitempty"`
	StudentAnswers []string `json:"student_answers,omitempty"`
}

// QuestionView is a practice question with the correct answer elided, safe
// to hand to the student-facing client.
type QuestionView struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty,omitempty"`
	Topic      string   `json:"topic"`
}

// QueryResponse is the pipeline result. Unreached stages leave their fields
// null rather than producing a malformed partial object.
type QueryResponse struct {
	Lecture          *string            `json:"lecture"`
	ControlQuestions []string           `json:"control_questions,omitempty"`
	Questions        []QuestionView     `json:"questions"`
	ValidationPassed bool               `json:"validation_passed"`
	Citations        []string           `json:"citations"`
	Evaluation       []EvaluationResult `json:"evaluation,omitempty"`
	Recommendations  *string            `json:"recommendations"`
	StudyPlan        string             `json:"study_plan,omitempty"`
	NextTopics       []string           `json:"next_topics,omitempty"`
	Error            *string            `json:"error"`
}

// BenchmarkItem is one question submitted to the benchmark solver.
type BenchmarkItem struct {
	QuestionID    string   `json:"question_id"`
	Question      string   `json:"question"`
	Answers       []string `json:"answers"`
	ExpectedIndex *int     `json:"expected_index,omitempty"`
}

// BenchmarkResult is the solver's verdict on one benchmark question.
type BenchmarkResult struct {
	QuestionID      string `json:"question_id"`
	AnswerIndex     int    `json:"answer_index"`
	AnswerText      string `json:"answer_text,omitempty"`
	MatchesExpected *bool  `json:"matches_expected,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Service exposes the tutoring operations over the pipeline, the journal
// store and the curriculum catalog.
type Service struct {
	pipeline  *Pipeline
	validator *Validator
	store     records.Store
	profiles  *profile.Builder
	catalog   *curriculum.Loader
}

// NewService wires the tutoring operations.
func NewService(pipeline *Pipeline, validator *Validator, store records.Store, profiles *profile.Builder, catalog *curriculum.Loader) *Service {
	return &Service{
		pipeline:  pipeline,
		validator: validator,
		store:     store,
		profiles:  profiles,
		catalog:   catalog,
	}
}

// SubmitQuery runs the full pipeline for a teacher query. progress may be
// nil. Stage failures come back inside the response error field; invalid
// input is returned as an error, whether caught up front or mid-pipeline
// (a wrong answer count only surfaces at the evaluation stage).
func (s *Service) SubmitQuery(ctx context.Context, req QueryRequest, progress ProgressFunc) (*QueryResponse, error) {
	run, err := s.buildRequest(req, progress)
	if err != nil {
		return nil, err
	}

	st := s.pipeline.Run(ctx, run)
	if err := inputShapeErr(st); err != nil {
		return nil, err
	}
	return buildResponse(st), nil
}

// AskQuestions runs the pipeline and returns the response together with the
// full question set, correct answers included. Chat front-ends keep the set
// so later answers are graded against the questions actually sent, instead
// of re-running generation.
func (s *Service) AskQuestions(ctx context.Context, req QueryRequest, progress ProgressFunc) (*QueryResponse, []PracticeQuestion, error) {
	run, err := s.buildRequest(req, progress)
	if err != nil {
		return nil, nil, err
	}

	st := s.pipeline.Run(ctx, run)
	if err := inputShapeErr(st); err != nil {
		return nil, nil, err
	}
	return buildResponse(st), st.PracticeQuestions, nil
}

// GradeAnswers evaluates answers against a previously generated question set
// and builds the score summary.
func (s *Service) GradeAnswers(ctx context.Context, questions []PracticeQuestion, answers []string) ([]EvaluationResult, string, error) {
	if len(questions) == 0 {
		return nil, "", &InputShapeError{Msg: "no questions to grade"}
	}

	st := &PipelineState{}
	results, err := s.pipeline.evaluator.Evaluate(ctx, st, questions, answers)
	if err != nil {
		return nil, "", err
	}

	summary, _ := BuildRecommendations(results, nil, nil)
	return results, summary, nil
}

// CheckAnswers runs the pipeline with the answer-checking path as primary.
// Answers are required here, unlike SubmitQuery where they are optional.
func (s *Service) CheckAnswers(ctx context.Context, req QueryRequest, progress ProgressFunc) (*QueryResponse, error) {
	if len(req.StudentAnswers) == 0 {
		return nil, &InputShapeError{Msg: "student_answers is required for check_answers"}
	}
	return s.SubmitQuery(ctx, req, progress)
}

// SolveBenchmark feeds questions straight to the solver, bypassing routing,
// retrieval and personalization. Subjects with a deterministic path are
// solved by expression evaluation; when an item declares an expected index
// the result reports whether the solver agrees.
func (s *Service) SolveBenchmark(ctx context.Context, subject string, items []BenchmarkItem) ([]BenchmarkResult, error) {
	if len(items) == 0 {
		return nil, &InputShapeError{Msg: "no benchmark questions submitted"}
	}

	deterministic := DeterministicSubject(subject)
	results := make([]BenchmarkResult, 0, len(items))
	for _, item := range items {
		res := BenchmarkResult{QuestionID: item.QuestionID, AnswerIndex: -1}

		idx, _, err := s.validator.Solve(ctx, item.Question, item.Answers, deterministic)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.AnswerIndex = idx
			if idx >= 0 && idx < len(item.Answers) {
				res.AnswerText = item.Answers[idx]
			}
			if item.ExpectedIndex != nil {
				matches := idx == *item.ExpectedIndex
				res.MatchesExpected = &matches
			}
		}
		results = append(results, res)
	}

	slog.Info("benchmark solved", "subject", subject, "questions", len(items))
	return results, nil
}

// ListStudents returns the journal aggregation for every known student.
func (s *Service) ListStudents(ctx context.Context) ([]records.StudentSummary, error) {
	return s.store.ListStudents(ctx)
}

// GetStudentInfo builds the student's profile over their full subject
// history.
func (s *Service) GetStudentInfo(ctx context.Context, studentID int, subject string) (*profile.StudentProfile, error) {
	if studentID <= 0 {
		return nil, &InputShapeError{Msg: fmt.Sprintf("invalid student id %d", studentID)}
	}

	subj, ok := s.catalog.SubjectByName(subject)
	if !ok {
		return nil, &InputShapeError{Msg: fmt.Sprintf("unknown subject %q", subject)}
	}

	return s.profiles.Build(ctx, studentID, subj.Name, "")
}

func (s *Service) buildRequest(req QueryRequest, progress ProgressFunc) (Request, error) {
	if req.Query == "" {
		return Request{}, &InputShapeError{Msg: "query is required"}
	}
	if !s.catalog.ValidGrade(req.Grade) {
		return Request{}, &InputShapeError{Msg: fmt.Sprintf("unsupported grade %d", req.Grade)}
	}

	subj, ok := s.catalog.SubjectByName(req.Subject)
	if !ok {
		return Request{}, &InputShapeError{Msg: fmt.Sprintf("unknown subject %q", req.Subject)}
	}

	return Request{
		Query:          req.Query,
		Grade:          req.Grade,
		Subject:        subj,
		StudentID:      req.StudentID,
		StudentAnswers: req.StudentAnswers,
		Progress:       progress,
	}, nil
}

// inputShapeErr extracts a caller-fault error from a finished run so the
// transport layer can map it to a 4xx instead of a 200 with an error field.
func inputShapeErr(st *PipelineState) error {
	var shapeErr *InputShapeError
	if errors.As(st.Err, &shapeErr) {
		return st.Err
	}
	return nil
}

func buildResponse(st *PipelineState) *QueryResponse {
	resp := &QueryResponse{
		ControlQuestions: st.ControlQuestions,
		ValidationPassed: st.ValidationPassed,
		Citations:        st.Citations,
		Evaluation:       st.EvaluationResults,
		StudyPlan:        st.StudyPlan,
		NextTopics:       st.NextTopics,
		Questions:        make([]QuestionView, 0, len(st.PracticeQuestions)),
	}

	if st.LectureContent != "" {
		resp.Lecture = &st.LectureContent
	}
	if st.Recommendations != "" {
		resp.Recommendations = &st.Recommendations
	}
	if desc := ErrDescriptor(st); desc != "" {
		resp.Error = &desc
	}

	for _, q := range st.PracticeQuestions {
		resp.Questions = append(resp.Questions, QuestionView{
			ID:         q.ID,
			Question:   q.Question,
			Options:    q.Options,
			Difficulty: q.Difficulty,
			Topic:      q.Topic,
		})
	}
	return resp
}
