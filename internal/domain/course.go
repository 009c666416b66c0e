package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type CourseLevel string

const (
	LevelBeginner     CourseLevel = "beginner"
	LevelIntermediate CourseLevel = "intermediate"
	LevelAdvanced     CourseLevel = "advanced"
)

type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
	CourseArchived  CourseStatus = "archived"
)

// Course groups ordered lessons.
type Course struct {
	bun.BaseModel `bun:"table:courses,alias:c" json:"-"`

	ID             int64           `bun:"id,pk,autoincrement" json:"id"`
	Title          string          `bun:"title,notnull" json:"title"`
	Slug           string          `bun:"slug,notnull" json:"slug"`
	Description    string          `bun:"description,notnull" json:"description"`
	Level          CourseLevel     `bun:"level,notnull" json:"level"`
	Status         CourseStatus    `bun:"status,notnull" json:"status"`
	Price          decimal.Decimal `bun:"price,type:numeric(10,2),notnull" json:"price"`
	IsFree         bool            `bun:"is_free,notnull" json:"is_free"`
	MaxEnrollments int             `bun:"max_enrollments,notnull" json:"max_enrollments"`
	InstructorID   int64           `bun:"instructor_id,notnull" json:"instructor_id"`
	PublishedAt    *time.Time      `bun:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time       `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull" json:"updated_at"`

	Lessons []Lesson `bun:"rel:has-many,join:id=course_id" json:"lessons,omitempty"`
}

func (c Course) Published() bool { return c.Status == CoursePublished }

type LessonType string

const (
	LessonVideo       LessonType = "video"
	LessonText        LessonType = "text"
	LessonInteractive LessonType = "interactive"
	LessonQuiz        LessonType = "quiz"
)

// Lesson is one ordered unit of a course.
type Lesson struct {
	bun.BaseModel `bun:"table:lessons,alias:l" json:"-"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	CourseID        int64      `bun:"course_id,notnull" json:"course_id"`
	Title           string     `bun:"title,notnull" json:"title"`
	Slug            string     `bun:"slug,notnull" json:"slug"`
	Content         string     `bun:"content,notnull" json:"content"`
	Type            LessonType `bun:"type,notnull" json:"type"`
	QuizID          *int64     `bun:"quiz_id" json:"quiz_id,omitempty"`
	DurationMinutes int        `bun:"duration_minutes,notnull" json:"duration_minutes"`
	Order           int        `bun:"lesson_order,notnull" json:"order"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

// Enrollment links a user to a course and tracks progress.
type Enrollment struct {
	bun.BaseModel `bun:"table:enrollments,alias:e" json:"-"`

	ID              int64            `bun:"id,pk,autoincrement" json:"id"`
	UserID          int64            `bun:"user_id,notnull" json:"user_id"`
	CourseID        int64            `bun:"course_id,notnull" json:"course_id"`
	Status          EnrollmentStatus `bun:"status,notnull" json:"status"`
	ProgressPercent float64          `bun:"progress_percent,notnull" json:"progress_percent"`
	EnrolledAt      time.Time        `bun:"enrolled_at,notnull" json:"enrolled_at"`
	CompletedAt     *time.Time       `bun:"completed_at" json:"completed_at,omitempty"`
}

// LessonProgress records a user's progress through one lesson.
type LessonProgress struct {
	bun.BaseModel `bun:"table:lesson_progress,alias:lp" json:"-"`

	ID           int64      `bun:"id,pk,autoincrement" json:"id"`
	EnrollmentID int64      `bun:"enrollment_id,notnull" json:"enrollment_id"`
	LessonID     int64      `bun:"lesson_id,notnull" json:"lesson_id"`
	StartedAt    time.Time  `bun:"started_at,notnull" json:"started_at"`
	CompletedAt  *time.Time `bun:"completed_at" json:"completed_at,omitempty"`
}

// CourseRating is a user's 1..5 rating of a course.
type CourseRating struct {
	bun.BaseModel `bun:"table:course_ratings,alias:cr" json:"-"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	CourseID  int64     `bun:"course_id,notnull" json:"course_id"`
	Rating    int       `bun:"rating,notnull" json:"rating"`
	Review    string    `bun:"review,notnull" json:"review"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Page
	Level        CourseLevel
	Search       string
	InstructorID int64
	AllStatuses  bool
}

// CourseProgress is the enrollment view returned to students.
type CourseProgress struct {
	Enrollment       Enrollment       `json:"enrollment"`
	TotalLessons     int              `json:"total_lessons"`
	CompletedLessons int              `json:"completed_lessons"`
	Lessons          []LessonProgress `json:"lessons"`
}
