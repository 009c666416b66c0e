package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-platform/internal/domain"
)

// Analytics runs the aggregate reporting queries directly over a pgx pool.
type Analytics struct {
	pool *pgxpool.Pool
}

func NewAnalytics(pool *pgxpool.Pool) *Analytics {
	return &Analytics{pool: pool}
}

func (a *Analytics) UserStats(ctx context.Context, userID int64) (domain.UserStats, error) {
	st := domain.UserStats{UserID: userID, RecentScores: []float64{}}
	err := a.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE passed),
		       COALESCE(avg(percentage_score), 0),
		       COALESCE(max(percentage_score), 0)
		FROM attempts WHERE user_id = $1 AND status = $2`,
		userID, domain.AttemptCompleted,
	).Scan(&st.TotalAttempts, &st.PassedAttempts, &st.AverageScore, &st.BestScore)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("user stats: %w", err)
	}

	rows, err := a.pool.Query(ctx, `
		SELECT percentage_score FROM attempts
		WHERE user_id = $1 AND status = $2
		ORDER BY COALESCE(submitted_at, started_at) DESC, id DESC
		LIMIT 5`, userID, domain.AttemptCompleted)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("recent scores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var score float64
		if err := rows.Scan(&score); err != nil {
			return domain.UserStats{}, fmt.Errorf("scan score: %w", err)
		}
		st.RecentScores = append(st.RecentScores, score)
	}
	return st, rows.Err()
}

func (a *Analytics) SystemStats(ctx context.Context) (domain.SystemStats, error) {
	var st domain.SystemStats
	err := a.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM users),
		       (SELECT count(*) FROM quizzes),
		       (SELECT count(*) FROM courses),
		       (SELECT count(*) FROM attempts),
		       COALESCE((SELECT avg(percentage_score) FROM attempts WHERE status = $1), 0),
		       COALESCE((SELECT 100.0 * count(*) FILTER (WHERE passed) / NULLIF(count(*), 0)
		                 FROM attempts WHERE status = $1), 0)`,
		domain.AttemptCompleted,
	).Scan(&st.TotalUsers, &st.TotalQuizzes, &st.TotalCourses, &st.TotalAttempts, &st.AverageScore, &st.PassRate)
	if err != nil {
		return domain.SystemStats{}, fmt.Errorf("system stats: %w", err)
	}
	return st, nil
}

const quizStatsColumns = `
	count(a.id),
	count(a.id) FILTER (WHERE a.status = 'completed'),
	count(DISTINCT a.user_id),
	COALESCE(avg(a.percentage_score) FILTER (WHERE a.status = 'completed'), 0),
	count(a.id) FILTER (WHERE a.status = 'completed' AND a.passed),
	count(a.id) FILTER (WHERE a.status = 'completed' AND a.percentage_score < 50),
	count(a.id) FILTER (WHERE a.status = 'completed' AND a.percentage_score >= 50 AND a.percentage_score < 70),
	count(a.id) FILTER (WHERE a.status = 'completed' AND a.percentage_score >= 70 AND a.percentage_score < 90),
	count(a.id) FILTER (WHERE a.status = 'completed' AND a.percentage_score >= 90)`

func (a *Analytics) QuizStats(ctx context.Context, quizID int64) (domain.QuizStats, error) {
	row := a.pool.QueryRow(ctx, `
		SELECT q.id, q.title, `+quizStatsColumns+`
		FROM quizzes q LEFT JOIN attempts a ON a.quiz_id = q.id
		WHERE q.id = $1
		GROUP BY q.id`, quizID)
	st, err := scanQuizStats(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizStats{}, fmt.Errorf("quiz stats: %w", err)
	}
	return st, nil
}

func (a *Analytics) QuizSummaries(ctx context.Context, createdBy int64) ([]domain.QuizStats, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT q.id, q.title, `+quizStatsColumns+`
		FROM quizzes q LEFT JOIN attempts a ON a.quiz_id = q.id
		WHERE $1::bigint = 0 OR q.created_by = $1
		GROUP BY q.id
		ORDER BY q.id`, createdBy)
	if err != nil {
		return nil, fmt.Errorf("quiz summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QuizStats, 0)
	for rows.Next() {
		st, err := scanQuizStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz summary: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanQuizStats(row pgx.Row) (domain.QuizStats, error) {
	var st domain.QuizStats
	var passed int
	err := row.Scan(
		&st.QuizID, &st.Title,
		&st.StartedAttempts, &st.CompletedAttempts, &st.UniqueUsers, &st.AverageScore, &passed,
		&st.Distribution.Below50, &st.Distribution.From50, &st.Distribution.From70, &st.Distribution.From90,
	)
	if err != nil {
		return domain.QuizStats{}, err
	}
	if st.CompletedAttempts > 0 {
		st.PassRate = float64(passed) / float64(st.CompletedAttempts) * 100
	}
	if st.StartedAttempts > 0 {
		st.CompletionRate = float64(st.CompletedAttempts) / float64(st.StartedAttempts) * 100
	}
	return st, nil
}

func (a *Analytics) CourseStats(ctx context.Context, courseID int64) (domain.CourseStats, error) {
	st := domain.CourseStats{CourseID: courseID}
	var exists bool
	if err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1)`, courseID).Scan(&exists); err != nil {
		return domain.CourseStats{}, fmt.Errorf("course stats: %w", err)
	}
	if !exists {
		return domain.CourseStats{}, domain.ErrCourseNotFound
	}

	err := a.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE status = 'completed'),
		       COALESCE(avg(progress_percent), 0)
		FROM enrollments WHERE course_id = $1`, courseID,
	).Scan(&st.Enrollments, &st.Completions, &st.AverageProgress)
	if err != nil {
		return domain.CourseStats{}, fmt.Errorf("course enrollment stats: %w", err)
	}
	if st.Enrollments > 0 {
		st.CompletionRate = float64(st.Completions) / float64(st.Enrollments) * 100
	}

	err = a.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(avg(rating), 0)
		FROM course_ratings WHERE course_id = $1`, courseID,
	).Scan(&st.RatingCount, &st.AverageRating)
	if err != nil {
		return domain.CourseStats{}, fmt.Errorf("course rating stats: %w", err)
	}
	return st, nil
}

func (a *Analytics) RecordEvent(ctx context.Context, e *domain.Event) error {
	var props interface{}
	if len(e.Properties) > 0 {
		props = string(e.Properties)
	}
	err := a.pool.QueryRow(ctx, `
		INSERT INTO events (user_id, name, properties, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		e.UserID, e.Name, props, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}
