package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-platform/internal/domain"
)

// QuizLoader reads a quiz with its questions, options and tags over a pgx pool.
// It backs the quiz cache on the attempt hot path.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var q domain.Quiz
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, slug, description, difficulty, time_limit, passing_score, max_attempts,
		       shuffle_questions, show_answers, proctoring_required, is_published, published_at,
		       created_by, course_id, created_at, updated_at
		FROM quizzes WHERE id = $1`, quizID).Scan(
		&q.ID, &q.Title, &q.Slug, &q.Description, &q.Difficulty, &q.TimeLimit, &q.PassingScore, &q.MaxAttempts,
		&q.ShuffleQuestions, &q.ShowAnswers, &q.ProctoringRequired, &q.IsPublished, &q.PublishedAt,
		&q.CreatedBy, &q.CourseID, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	if q.Tags, err = l.tags(ctx, quizID); err != nil {
		return domain.Quiz{}, err
	}
	if q.Questions, err = l.questions(ctx, quizID); err != nil {
		return domain.Quiz{}, err
	}
	return q, nil
}

func (l *QuizLoader) tags(ctx context.Context, quizID int64) ([]domain.Tag, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT t.id, t.name, t.slug
		FROM tags t JOIN quiz_tags qt ON qt.tag_id = t.id
		WHERE qt.quiz_id = $1 ORDER BY t.name`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load quiz tags: %w", err)
	}
	defer rows.Close()

	tags := make([]domain.Tag, 0)
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (l *QuizLoader) questions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, quiz_id, type, text, explanation, points, position, created_at
		FROM questions WHERE quiz_id = $1 ORDER BY position, id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	questions := make([]domain.Question, 0)
	index := make(map[int64]int)
	for rows.Next() {
		var qu domain.Question
		if err := rows.Scan(&qu.ID, &qu.QuizID, &qu.Type, &qu.Text, &qu.Explanation, &qu.Points, &qu.Position, &qu.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		qu.Options = make([]domain.Option, 0)
		index[qu.ID] = len(questions)
		questions = append(questions, qu)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	orows, err := l.pool.Query(ctx, `
		SELECT o.id, o.question_id, o.text, o.is_correct, o.position
		FROM options o JOIN questions qu ON qu.id = o.question_id
		WHERE qu.quiz_id = $1 ORDER BY o.position, o.id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer orows.Close()
	for orows.Next() {
		var o domain.Option
		if err := orows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &o.Position); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, orows.Err()
}
