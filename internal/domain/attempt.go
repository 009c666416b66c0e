package domain

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// AttemptStatus tracks an attempt's lifecycle.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
)

// Attempt is one user's run through a quiz's selected questions.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts,alias:a" json:"-"`

	ID                  int64         `bun:"id,pk,autoincrement" json:"id"`
	UserID              int64         `bun:"user_id,notnull" json:"user_id"`
	QuizID              int64         `bun:"quiz_id,notnull" json:"quiz_id"`
	Status              AttemptStatus `bun:"status,notnull" json:"status"`
	QuestionIDs         []int64       `bun:"question_ids,array" json:"question_ids"`
	TotalQuestions      int           `bun:"total_questions,notnull" json:"total_questions"`
	CorrectAnswers      int           `bun:"correct_answers,notnull" json:"correct_answers"`
	IncorrectAnswers    int           `bun:"incorrect_answers,notnull" json:"incorrect_answers"`
	UnansweredQuestions int           `bun:"unanswered_questions,notnull" json:"unanswered_questions"`
	PendingGrading      int           `bun:"pending_grading,notnull" json:"pending_grading"`
	PointsEarned        int           `bun:"points_earned,notnull" json:"points_earned"`
	PointsPossible      int           `bun:"points_possible,notnull" json:"points_possible"`
	PercentageScore     float64       `bun:"percentage_score,notnull" json:"percentage_score"`
	Passed              bool          `bun:"passed,notnull" json:"passed"`
	IsValid             bool          `bun:"is_valid,notnull" json:"is_valid"`
	StartedAt           time.Time     `bun:"started_at,notnull" json:"started_at"`
	SubmittedAt         *time.Time    `bun:"submitted_at" json:"submitted_at,omitempty"`
	DurationSeconds     int           `bun:"duration_seconds,notnull" json:"duration_seconds"`

	Answers []Answer `bun:"rel:has-many,join:id=attempt_id" json:"answers,omitempty"`
}

func (a Attempt) Completed() bool { return a.Status == AttemptCompleted }

// Includes reports whether questionID was selected for this attempt.
func (a Attempt) Includes(questionID int64) bool {
	for _, id := range a.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Answer is the response to one selected question of an attempt.
type Answer struct {
	bun.BaseModel `bun:"table:answers,alias:an" json:"-"`

	ID                int64      `bun:"id,pk,autoincrement" json:"id"`
	AttemptID         int64      `bun:"attempt_id,notnull" json:"attempt_id"`
	QuestionID        int64      `bun:"question_id,notnull" json:"question_id"`
	SelectedOptionIDs []int64    `bun:"selected_option_ids,array" json:"selected_option_ids"`
	TextAnswer        string     `bun:"text_answer,notnull" json:"text_answer,omitempty"`
	FileURL           string     `bun:"file_url,notnull" json:"file_url,omitempty"`
	IsCorrect         bool       `bun:"is_correct,notnull" json:"is_correct"`
	PointsEarned      int        `bun:"points_earned,notnull" json:"points_earned"`
	IsManuallyGraded  bool       `bun:"is_manually_graded,notnull" json:"is_manually_graded"`
	GradedBy          *int64     `bun:"graded_by" json:"graded_by,omitempty"`
	GradedAt          *time.Time `bun:"graded_at" json:"graded_at,omitempty"`
	Feedback          string     `bun:"feedback,notnull" json:"feedback,omitempty"`
	CreatedAt         time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// AwaitingGrade reports whether an instructor still has to score this answer.
func (a Answer) AwaitingGrade() bool {
	return a.IsManuallyGraded && a.GradedAt == nil
}

// AnswerSubmission is the client payload for one question.
type AnswerSubmission struct {
	QuestionID int64   `json:"question_id" validate:"required,gt=0"`
	OptionIDs  []int64 `json:"option_ids"`
	// Text carries free-text/essay responses, or an option's text for single-select payloads.
	Text    string `json:"text"`
	FileURL string `json:"file_url" validate:"omitempty,url"`
}

// Empty reports whether the submission carries no response at all.
func (s AnswerSubmission) Empty() bool {
	return len(s.OptionIDs) == 0 && strings.TrimSpace(s.Text) == "" && s.FileURL == ""
}

// AnswerResult summarizes the outcome of grading a single answer.
type AnswerResult struct {
	IsCorrect        bool `json:"is_correct"`
	PointsEarned     int  `json:"points_earned"`
	IsManuallyGraded bool `json:"is_manually_graded"`
}

// ManualGrade is an instructor's score for an essay or upload answer.
type ManualGrade struct {
	PointsEarned int    `json:"points_earned" validate:"gte=0"`
	IsCorrect    *bool  `json:"is_correct"`
	Feedback     string `json:"feedback" validate:"max=2000"`
}

// AttemptFilter narrows attempt listings.
type AttemptFilter struct {
	Page
	UserID    int64
	QuizID    int64
	QuizIDs   []int64
	Status    AttemptStatus
	OnlyValid bool
}

// ReviewItem shows one question of a completed attempt with the user's response.
type ReviewItem struct {
	Question       Question `json:"question"`
	Answer         *Answer  `json:"answer,omitempty"`
	CorrectOptions []Option `json:"correct_options,omitempty"`
}

// AttemptReview is the per-question breakdown of an attempt.
type AttemptReview struct {
	Attempt Attempt      `json:"attempt"`
	Quiz    QuizSummary  `json:"quiz"`
	Items   []ReviewItem `json:"items"`
}

// QuizSummary is the quiz header shown alongside attempts.
type QuizSummary struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	PassingScore float64 `json:"passing_score"`
}

// PendingAnswer is an answer awaiting manual grading with enough context to grade it.
type PendingAnswer struct {
	Answer   Answer   `json:"answer"`
	Question Question `json:"question"`
	UserID   int64    `json:"user_id"`
	QuizID   int64    `json:"quiz_id"`
}
