package memory

import (
	"context"
	"sort"
	"time"

	"quiz-platform/internal/domain"
)

// Analytics answers aggregate queries over a Store.
type Analytics struct {
	s *Store
}

func (s *Store) Analytics() *Analytics {
	return &Analytics{s: s}
}

func (a *Analytics) UserStats(_ context.Context, userID int64) (domain.UserStats, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	completed := make([]domain.Attempt, 0)
	for _, at := range a.s.attempts {
		if at.UserID == userID && at.Completed() {
			completed = append(completed, at)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return submitted(completed[i]).After(submitted(completed[j]))
	})

	st := domain.UserStats{UserID: userID, TotalAttempts: len(completed), RecentScores: []float64{}}
	sum := 0.0
	for i, at := range completed {
		sum += at.PercentageScore
		if at.Passed {
			st.PassedAttempts++
		}
		if at.PercentageScore > st.BestScore {
			st.BestScore = at.PercentageScore
		}
		if i < 5 {
			st.RecentScores = append(st.RecentScores, at.PercentageScore)
		}
	}
	if len(completed) > 0 {
		st.AverageScore = sum / float64(len(completed))
	}
	return st, nil
}

func (a *Analytics) SystemStats(_ context.Context) (domain.SystemStats, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	st := domain.SystemStats{
		TotalUsers:   len(a.s.users),
		TotalQuizzes: len(a.s.quizzes),
		TotalCourses: len(a.s.courses),
	}
	sum, passed, completed := 0.0, 0, 0
	for _, at := range a.s.attempts {
		st.TotalAttempts++
		if !at.Completed() {
			continue
		}
		completed++
		sum += at.PercentageScore
		if at.Passed {
			passed++
		}
	}
	if completed > 0 {
		st.AverageScore = sum / float64(completed)
		st.PassRate = float64(passed) / float64(completed) * 100
	}
	return st, nil
}

func (a *Analytics) QuizStats(_ context.Context, quizID int64) (domain.QuizStats, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if _, ok := a.s.quizzes[quizID]; !ok {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	return a.quizStatsLocked(quizID), nil
}

func (a *Analytics) QuizSummaries(_ context.Context, createdBy int64) ([]domain.QuizStats, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	out := make([]domain.QuizStats, 0)
	for _, q := range a.s.quizzes {
		if createdBy != 0 && q.CreatedBy != createdBy {
			continue
		}
		st := a.quizStatsLocked(q.ID)
		st.Title = q.Title
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuizID < out[j].QuizID })
	return out, nil
}

func (a *Analytics) quizStatsLocked(quizID int64) domain.QuizStats {
	st := domain.QuizStats{QuizID: quizID}
	users := make(map[int64]bool)
	sum, passed := 0.0, 0
	for _, at := range a.s.attempts {
		if at.QuizID != quizID {
			continue
		}
		st.StartedAttempts++
		users[at.UserID] = true
		if !at.Completed() {
			continue
		}
		st.CompletedAttempts++
		sum += at.PercentageScore
		if at.Passed {
			passed++
		}
		st.Distribution.Add(at.PercentageScore)
	}
	st.UniqueUsers = len(users)
	if st.CompletedAttempts > 0 {
		st.AverageScore = sum / float64(st.CompletedAttempts)
		st.PassRate = float64(passed) / float64(st.CompletedAttempts) * 100
	}
	if st.StartedAttempts > 0 {
		st.CompletionRate = float64(st.CompletedAttempts) / float64(st.StartedAttempts) * 100
	}
	return st
}

func (a *Analytics) CourseStats(_ context.Context, courseID int64) (domain.CourseStats, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if _, ok := a.s.courses[courseID]; !ok {
		return domain.CourseStats{}, domain.ErrCourseNotFound
	}

	st := domain.CourseStats{CourseID: courseID}
	progress := 0.0
	for _, e := range a.s.enrollments {
		if e.CourseID != courseID {
			continue
		}
		st.Enrollments++
		progress += e.ProgressPercent
		if e.Status == domain.EnrollmentCompleted {
			st.Completions++
		}
	}
	if st.Enrollments > 0 {
		st.CompletionRate = float64(st.Completions) / float64(st.Enrollments) * 100
		st.AverageProgress = progress / float64(st.Enrollments)
	}

	ratings := 0
	for _, r := range a.s.ratings {
		if r.CourseID == courseID {
			st.RatingCount++
			ratings += r.Rating
		}
	}
	if st.RatingCount > 0 {
		st.AverageRating = float64(ratings) / float64(st.RatingCount)
	}
	return st, nil
}

func (a *Analytics) RecordEvent(_ context.Context, e *domain.Event) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	e.ID = a.s.nextID()
	a.s.events = append(a.s.events, *e)
	return nil
}

// Events returns the recorded events in insertion order.
func (a *Analytics) Events() []domain.Event {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return append([]domain.Event(nil), a.s.events...)
}

func submitted(a domain.Attempt) time.Time {
	if a.SubmittedAt != nil {
		return *a.SubmittedAt
	}
	return a.StartedAt
}
