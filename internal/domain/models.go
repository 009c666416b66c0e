package domain

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// LeaderboardEntry is a ranked best attempt of one user.
type LeaderboardEntry struct {
	Rank            int       `json:"rank"`
	UserID          int64     `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	PercentageScore float64   `json:"percentage_score"`
	DurationSeconds int       `json:"duration_seconds"`
	AttemptID       int64     `json:"attempt_id"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    int64              `json:"quiz_id"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// UserStats summarizes one user's attempts.
type UserStats struct {
	UserID         int64     `json:"user_id"`
	TotalAttempts  int       `json:"total_attempts"`
	PassedAttempts int       `json:"passed_attempts"`
	AverageScore   float64   `json:"average_score"`
	BestScore      float64   `json:"best_score"`
	RecentScores   []float64 `json:"recent_scores"`
}

// UserProgress is the dashboard progress summary.
type UserProgress struct {
	TotalQuizzesAttempted int       `json:"total_quizzes_attempted"`
	AverageScore          float64   `json:"average_score"`
	RecentScores          []float64 `json:"recent_scores"`
}

// SystemStats is the admin dashboard summary.
type SystemStats struct {
	TotalUsers    int     `json:"total_users"`
	TotalQuizzes  int     `json:"total_quizzes"`
	TotalAttempts int     `json:"total_attempts"`
	AverageScore  float64 `json:"average_score"`
	PassRate      float64 `json:"pass_rate"`
	TotalCourses  int     `json:"total_courses"`
}

// ScoreBuckets counts completed attempts per percentage band.
type ScoreBuckets struct {
	Below50 int `json:"0-50"`
	From50  int `json:"50-70"`
	From70  int `json:"70-90"`
	From90  int `json:"90-100"`
}

// Add counts pct into its band.
func (b *ScoreBuckets) Add(pct float64) {
	switch {
	case pct < 50:
		b.Below50++
	case pct < 70:
		b.From50++
	case pct < 90:
		b.From70++
	default:
		b.From90++
	}
}

// QuizStats summarizes attempts on one quiz.
type QuizStats struct {
	QuizID            int64        `json:"quiz_id"`
	Title             string       `json:"title"`
	StartedAttempts   int          `json:"started_attempts"`
	CompletedAttempts int          `json:"completed_attempts"`
	UniqueUsers       int          `json:"unique_users"`
	AverageScore      float64      `json:"average_score"`
	PassRate          float64      `json:"pass_rate"`
	CompletionRate    float64      `json:"completion_rate"`
	Distribution      ScoreBuckets `json:"score_distribution"`
}

// CourseStats summarizes enrollments on one course.
type CourseStats struct {
	CourseID        int64   `json:"course_id"`
	Enrollments     int     `json:"enrollments"`
	Completions     int     `json:"completions"`
	CompletionRate  float64 `json:"completion_rate"`
	AverageProgress float64 `json:"average_progress"`
	AverageRating   float64 `json:"average_rating"`
	RatingCount     int     `json:"rating_count"`
}

// Event is a tracked analytics event.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:ev" json:"-"`

	ID         int64           `bun:"id,pk,autoincrement" json:"id"`
	UserID     *int64          `bun:"user_id" json:"user_id,omitempty"`
	Name       string          `bun:"name,notnull" json:"name"`
	Properties json.RawMessage `bun:"properties,type:jsonb" json:"properties,omitempty"`
	CreatedAt  time.Time       `bun:"created_at,notnull" json:"created_at"`
}

// TaskKind names a background job.
type TaskKind string

const (
	TaskAttemptCompleted   TaskKind = "attempt.completed"
	TaskLeaderboardRefresh TaskKind = "leaderboard.refresh"
	TaskCourseCompleted    TaskKind = "course.completed"
)

// Task is a unit of background work; handlers must be idempotent.
type Task struct {
	Kind      TaskKind `json:"kind"`
	AttemptID int64    `json:"attempt_id,omitempty"`
	QuizID    int64    `json:"quiz_id,omitempty"`
	CourseID  int64    `json:"course_id,omitempty"`
	UserID    int64    `json:"user_id,omitempty"`
	Tries     int      `json:"tries,omitempty"`
	// Regrade marks a completion re-announced after grading; PreviousScore is the score before it.
	Regrade       bool    `json:"regrade,omitempty"`
	PreviousScore float64 `json:"previous_score,omitempty"`
}

// TaskDelivery is a dequeued task; Receipt identifies it to the queue when acknowledging.
type TaskDelivery struct {
	Task    Task
	Receipt string
}
