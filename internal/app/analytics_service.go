package app

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// EventQuizCompleted is recorded for every completed attempt.
const EventQuizCompleted = "quiz_completed"

// EventInput is a client-tracked analytics event.
type EventInput struct {
	Name       string          `json:"event_name" validate:"required,max=100"`
	Properties json.RawMessage `json:"properties"`
}

// AnalyticsService serves dashboards over attempts, enrollments and events.
type AnalyticsService struct {
	repo    AnalyticsRepository
	quizzes QuizSource
	courses CourseRepository
	now     func() time.Time
}

func NewAnalyticsService(repo AnalyticsRepository, quizzes QuizSource, courses CourseRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo, quizzes: quizzes, courses: courses, now: time.Now}
}

// UserStats returns a user's attempt statistics to the user or staff.
func (s *AnalyticsService) UserStats(ctx context.Context, actor Actor, userID int64) (domain.UserStats, error) {
	if !actor.CanRead(userID) {
		return domain.UserStats{}, domain.ErrForbidden
	}
	stats, err := s.repo.UserStats(ctx, userID)
	if err != nil {
		return domain.UserStats{}, errors.Wrap(err, "user stats")
	}
	stats.AverageScore = round2(stats.AverageScore)
	return stats, nil
}

// Progress is the caller's dashboard summary: attempts, average and the last five scores.
func (s *AnalyticsService) Progress(ctx context.Context, actor Actor) (domain.UserProgress, error) {
	stats, err := s.repo.UserStats(ctx, actor.UserID)
	if err != nil {
		return domain.UserProgress{}, errors.Wrap(err, "user stats")
	}
	recent := stats.RecentScores
	if len(recent) > 5 {
		recent = recent[:5]
	}
	if recent == nil {
		recent = []float64{}
	}
	return domain.UserProgress{
		TotalQuizzesAttempted: stats.TotalAttempts,
		AverageScore:          round2(stats.AverageScore),
		RecentScores:          recent,
	}, nil
}

// System is the admin dashboard.
func (s *AnalyticsService) System(ctx context.Context, actor Actor) (domain.SystemStats, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.SystemStats{}, err
	}
	stats, err := s.repo.SystemStats(ctx)
	if err != nil {
		return domain.SystemStats{}, errors.Wrap(err, "system stats")
	}
	stats.AverageScore = round2(stats.AverageScore)
	stats.PassRate = round2(stats.PassRate)
	return stats, nil
}

// Quiz returns statistics for a quiz the caller manages.
func (s *AnalyticsService) Quiz(ctx context.Context, actor Actor, quizID int64) (domain.QuizStats, error) {
	if err := requireStaff(actor); err != nil {
		return domain.QuizStats{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.QuizStats{}, err
	}
	if !actor.CanManage(quiz.CreatedBy) {
		return domain.QuizStats{}, domain.ErrForbidden
	}
	stats, err := s.repo.QuizStats(ctx, quizID)
	if err != nil {
		return domain.QuizStats{}, errors.Wrap(err, "quiz stats")
	}
	stats.Title = quiz.Title
	return roundQuizStats(stats), nil
}

// Instructor summarizes every quiz the caller created; admins see all quizzes.
func (s *AnalyticsService) Instructor(ctx context.Context, actor Actor) ([]domain.QuizStats, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var createdBy int64
	if !actor.IsAdmin() {
		createdBy = actor.UserID
	}
	stats, err := s.repo.QuizSummaries(ctx, createdBy)
	if err != nil {
		return nil, errors.Wrap(err, "quiz summaries")
	}
	for i := range stats {
		stats[i] = roundQuizStats(stats[i])
	}
	return stats, nil
}

// Course returns statistics for a course the caller teaches.
func (s *AnalyticsService) Course(ctx context.Context, actor Actor, courseID int64) (domain.CourseStats, error) {
	if err := requireStaff(actor); err != nil {
		return domain.CourseStats{}, err
	}
	course, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return domain.CourseStats{}, err
	}
	if !actor.CanManage(course.InstructorID) {
		return domain.CourseStats{}, domain.ErrForbidden
	}
	stats, err := s.repo.CourseStats(ctx, courseID)
	if err != nil {
		return domain.CourseStats{}, errors.Wrap(err, "course stats")
	}
	stats.CompletionRate = round2(stats.CompletionRate)
	stats.AverageProgress = round2(stats.AverageProgress)
	stats.AverageRating = round2(stats.AverageRating)
	return stats, nil
}

// Track records a client event for the caller.
func (s *AnalyticsService) Track(ctx context.Context, actor Actor, in EventInput) (domain.Event, error) {
	e := domain.Event{
		UserID:     ptrInt64(actor.UserID),
		Name:       in.Name,
		Properties: in.Properties,
		CreatedAt:  s.now(),
	}
	if len(e.Properties) > 0 && !sonic.Valid(e.Properties) {
		return domain.Event{}, domain.FieldValidationError("properties", "properties must be valid JSON")
	}
	if err := s.repo.RecordEvent(ctx, &e); err != nil {
		return domain.Event{}, errors.Wrap(err, "record event")
	}
	return e, nil
}

// RecordCompletion stores the quiz_completed event of an attempt.
func (s *AnalyticsService) RecordCompletion(ctx context.Context, a domain.Attempt) error {
	props, err := sonic.Marshal(map[string]interface{}{
		"attempt_id": a.ID,
		"quiz_id":    a.QuizID,
		"score":      a.PercentageScore,
		"passed":     a.Passed,
		"valid":      a.IsValid,
	})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	e := domain.Event{UserID: ptrInt64(a.UserID), Name: EventQuizCompleted, Properties: props, CreatedAt: s.now()}
	return errors.Wrap(s.repo.RecordEvent(ctx, &e), "record event")
}

func roundQuizStats(st domain.QuizStats) domain.QuizStats {
	st.AverageScore = round2(st.AverageScore)
	st.PassRate = round2(st.PassRate)
	st.CompletionRate = round2(st.CompletionRate)
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
