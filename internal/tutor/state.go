// Package tutor implements the tutoring pipeline: topic routing, context
// retrieval, personalization, lecture and practice generation, the bounded
// solve/validate loop, answer evaluation and recommendations.
package tutor

import (
	"github.com/mriia-ai/tutor/internal/curriculum"
	"github.com/mriia-ai/tutor/internal/index"
	"github.com/mriia-ai/tutor/internal/profile"
)

// Stage names a pipeline phase, reported through the progress callback.
type Stage string

const (
	StageRouting    Stage = "routing"
	StageRetrieval  Stage = "retrieval"
	StageProfile    Stage = "profile"
	StageLecture    Stage = "lecture"
	StagePractice   Stage = "practice"
	StageValidation Stage = "validation"
	StageEvaluation Stage = "evaluation"
	StageRecommend  Stage = "recommend"
	StageDone       Stage = "done"
)

// ProgressFunc receives stage transitions while a request runs. It is called
// from the request goroutine and must not block for long.
type ProgressFunc func(stage Stage, detail string)

// answerLetters maps option indexes to the letters students answer with.
var answerLetters = []string{"А", "Б", "В", "Г"}

// PracticeQuestion is one generated multiple-choice question.
type PracticeQuestion struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Topic        string   `json:"topic"`

	// Filled by the validator.
	IsValidated    bool `json:"is_validated"`
	ValidatorIndex int  `json:"validator_index"` // -1 until solved
}

// CorrectLetter returns the declared correct answer as a letter (А..Г).
func (q PracticeQuestion) CorrectLetter() string {
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(answerLetters) {
		return ""
	}
	return answerLetters[q.CorrectIndex]
}

// ValidationResult is the outcome of independently solving one question.
type ValidationResult struct {
	QuestionIndex  int    `json:"question_index"`
	ExpectedIndex  int    `json:"expected_index"`
	ValidatorIndex int    `json:"validator_index"`
	IsValid        bool   `json:"is_valid"`
	Error          string `json:"error,omitempty"`
}

// EvaluationResult is the check of one student answer.
type EvaluationResult struct {
	QuestionIndex int     `json:"question_index"`
	QuestionText  string  `json:"question_text"`
	StudentAnswer string  `json:"student_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	IsCorrect     bool    `json:"is_correct"`
	Credit        float64 `json:"credit"`
	Feedback      string  `json:"feedback,omitempty"`
}

// Request is one tutoring request entering the pipeline.
type Request struct {
	Query          string
	Grade          int
	Subject        curriculum.Subject
	StudentID      int // 0 means anonymous
	StudentAnswers []string
	Progress       ProgressFunc // optional
}

// PipelineState is the single context threaded through all stages. It is
// created per request and owned by the orchestrator; stages mutate it in
// place and never share it across requests.
type PipelineState struct {
	Query          string
	Grade          int
	Subject        curriculum.Subject
	StudentID      int
	StudentAnswers []string

	QueryVector []float32

	MatchedTopics []index.TopicRecord
	MatchedPages  []index.PageRecord
	Citations     []string

	Profile *profile.StudentProfile

	LectureContent   string
	ControlQuestions []string

	PracticeQuestions []PracticeQuestion
	ValidationResults []ValidationResult
	ValidationPassed  bool
	RegenerationCount int

	EvaluationResults []EvaluationResult
	Recommendations   string
	StudyPlan         string
	NextTopics        []string

	// TokensByTask accumulates gateway token usage per task for the
	// request, reported to the usage tracker when the run finishes.
	TokensByTask map[string]int

	Err error
}

func newPipelineState(req Request) *PipelineState {
	return &PipelineState{
		Query:          req.Query,
		Grade:          req.Grade,
		Subject:        req.Subject,
		StudentID:      req.StudentID,
		StudentAnswers: req.StudentAnswers,
		TokensByTask:   make(map[string]int),
	}
}

func (st *PipelineState) addUsage(task string, tokens int) {
	if st.TokensByTask == nil {
		st.TokensByTask = make(map[string]int)
	}
	st.TokensByTask[task] += tokens
}
