package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Difficulty grades a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// QuestionType selects the grading rule for a question.
type QuestionType string

const (
	QuestionSingleSelect QuestionType = "single_select"
	QuestionMultiSelect  QuestionType = "multi_select"
	QuestionFreeText     QuestionType = "free_text"
	QuestionEssay        QuestionType = "essay"
	QuestionFileUpload   QuestionType = "file_upload"
)

// ManuallyGraded reports whether answers of this type always wait for an instructor.
func (t QuestionType) ManuallyGraded() bool {
	return t == QuestionEssay || t == QuestionFileUpload
}

const (
	DefaultTimeLimit    = 600
	DefaultPassingScore = 70.0
)

// Quiz is a collection of questions.
type Quiz struct {
	bun.BaseModel `bun:"table:quizzes,alias:q" json:"-"`

	ID                 int64      `bun:"id,pk,autoincrement" json:"id"`
	Title              string     `bun:"title,notnull" json:"title"`
	Slug               string     `bun:"slug,notnull" json:"slug"`
	Description        string     `bun:"description,notnull" json:"description"`
	Difficulty         Difficulty `bun:"difficulty,notnull" json:"difficulty"`
	TimeLimit          int        `bun:"time_limit,notnull" json:"time_limit"`
	PassingScore       float64    `bun:"passing_score,notnull" json:"passing_score"`
	MaxAttempts        int        `bun:"max_attempts,notnull" json:"max_attempts"`
	ShuffleQuestions   bool       `bun:"shuffle_questions,notnull" json:"shuffle_questions"`
	ShowAnswers        bool       `bun:"show_answers,notnull" json:"show_answers"`
	ProctoringRequired bool       `bun:"proctoring_required,notnull" json:"proctoring_required"`
	IsPublished        bool       `bun:"is_published,notnull" json:"is_published"`
	PublishedAt        *time.Time `bun:"published_at" json:"published_at,omitempty"`
	CreatedBy          int64      `bun:"created_by,notnull" json:"created_by"`
	CourseID           *int64     `bun:"course_id" json:"course_id,omitempty"`
	CreatedAt          time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull" json:"updated_at"`

	Questions []Question `bun:"rel:has-many,join:id=quiz_id" json:"questions,omitempty"`
	Tags      []Tag      `bun:"m2m:quiz_tags,join:Quiz=Tag" json:"tags"`
}

// Question finds a question by ID.
func (q Quiz) Question(id int64) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// TagNames lists the quiz tag names.
func (q Quiz) TagNames() []string {
	names := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Question models one quiz item.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:qu" json:"-"`

	ID          int64        `bun:"id,pk,autoincrement" json:"id"`
	QuizID      int64        `bun:"quiz_id,notnull" json:"quiz_id"`
	Type        QuestionType `bun:"type,notnull" json:"type"`
	Text        string       `bun:"text,notnull" json:"text"`
	Explanation string       `bun:"explanation,notnull" json:"explanation,omitempty"`
	Points      int          `bun:"points,notnull" json:"points"` // defaults to 1 if zero
	Position    int          `bun:"position,notnull" json:"position"`
	CreatedAt   time.Time    `bun:"created_at,notnull" json:"created_at"`

	Options []Option `bun:"rel:has-many,join:id=question_id" json:"options"`
}

// Worth returns the question's point value, treating zero as one.
func (q Question) Worth() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectOptions returns the options flagged correct.
func (q Question) CorrectOptions() []Option {
	out := make([]Option, 0, 1)
	for _, o := range q.Options {
		if o.IsCorrect {
			out = append(out, o)
		}
	}
	return out
}

// Option represents a possible answer for a question.
type Option struct {
	bun.BaseModel `bun:"table:options,alias:o" json:"-"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	QuestionID int64  `bun:"question_id,notnull" json:"question_id"`
	Text       string `bun:"text,notnull" json:"text"`
	IsCorrect  bool   `bun:"is_correct,notnull" json:"is_correct"`
	Position   int    `bun:"position,notnull" json:"position"`
}

// Tag labels quizzes.
type Tag struct {
	bun.BaseModel `bun:"table:tags,alias:t" json:"-"`

	ID   int64  `bun:"id,pk,autoincrement" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
	Slug string `bun:"slug,notnull" json:"slug"`
}

// QuizTag is the quiz/tag join row.
type QuizTag struct {
	bun.BaseModel `bun:"table:quiz_tags"`

	QuizID int64 `bun:"quiz_id,pk"`
	Quiz   *Quiz `bun:"rel:belongs-to,join:quiz_id=id"`
	TagID  int64 `bun:"tag_id,pk"`
	Tag    *Tag  `bun:"rel:belongs-to,join:tag_id=id"`
}

// QuizFilter narrows quiz listings.
type QuizFilter struct {
	Page
	Difficulty         Difficulty
	Tag                string
	Search             string
	CreatedBy          int64
	IncludeUnpublished bool
}
