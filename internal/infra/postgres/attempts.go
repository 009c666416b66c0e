package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// CreateAttempt relies on the partial unique index attempts_one_in_progress.
func (s *Store) CreateAttempt(ctx context.Context, a *domain.Attempt) error {
	_, err := s.db.NewInsert().Model(a).Returning("id").Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrAttemptInProgress
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) InProgressAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, error) {
	var a domain.Attempt
	err := s.db.NewSelect().Model(&a).
		Relation("Answers", orderAnswers).
		Where("a.user_id = ?", userID).
		Where("a.quiz_id = ?", quizID).
		Where("a.status = ?", domain.AttemptInProgress).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Attempt{}, notFound(err, domain.ErrAttemptNotFound)
	}
	return a, nil
}

func (s *Store) CountCompleted(ctx context.Context, userID, quizID int64) (int, error) {
	n, err := s.db.NewSelect().Model((*domain.Attempt)(nil)).
		Where("user_id = ?", userID).
		Where("quiz_id = ?", quizID).
		Where("status = ?", domain.AttemptCompleted).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return n, nil
}

func (s *Store) AttemptByID(ctx context.Context, id int64) (domain.Attempt, error) {
	var a domain.Attempt
	err := s.db.NewSelect().Model(&a).Relation("Answers", orderAnswers).Where("a.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.Attempt{}, notFound(err, domain.ErrAttemptNotFound)
	}
	return a, nil
}

// UpdateAttempt serializes concurrent submissions with SELECT ... FOR UPDATE.
func (s *Store) UpdateAttempt(ctx context.Context, id int64, fn app.AttemptMutation) (domain.Attempt, error) {
	var out domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var a domain.Attempt
		if err := tx.NewSelect().Model(&a).Where("a.id = ?", id).For("UPDATE").Scan(ctx); err != nil {
			return notFound(err, domain.ErrAttemptNotFound)
		}
		a.Answers = make([]domain.Answer, 0)
		if err := tx.NewSelect().Model(&a.Answers).Where("an.attempt_id = ?", id).Order("an.id ASC").Scan(ctx); err != nil {
			return fmt.Errorf("load answers: %w", err)
		}

		changed, err := fn(&a)
		if err != nil {
			return err
		}
		a.ID = id
		if _, err := tx.NewUpdate().Model(&a).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		for i := range changed {
			ans := &changed[i]
			ans.AttemptID = id
			if ans.ID == 0 {
				if _, err := tx.NewInsert().Model(ans).Returning("id").Exec(ctx); err != nil {
					return fmt.Errorf("insert answer: %w", err)
				}
				continue
			}
			if _, err := tx.NewUpdate().Model(ans).WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("update answer: %w", err)
			}
		}

		out = a
		out.Answers = make([]domain.Answer, 0, len(a.Answers))
		return tx.NewSelect().Model(&out.Answers).Where("an.attempt_id = ?", id).Order("an.id ASC").Scan(ctx)
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func (s *Store) AnswerByID(ctx context.Context, id int64) (domain.Answer, error) {
	var ans domain.Answer
	if err := s.db.NewSelect().Model(&ans).Where("an.id = ?", id).Scan(ctx); err != nil {
		return domain.Answer{}, notFound(err, domain.ErrAnswerNotFound)
	}
	return ans, nil
}

func (s *Store) ListAttempts(ctx context.Context, f domain.AttemptFilter) ([]domain.Attempt, int, error) {
	attempts := make([]domain.Attempt, 0)
	q := s.db.NewSelect().Model(&attempts)
	if f.UserID != 0 {
		q = q.Where("a.user_id = ?", f.UserID)
	}
	if f.QuizID != 0 {
		q = q.Where("a.quiz_id = ?", f.QuizID)
	}
	if f.QuizIDs != nil {
		if len(f.QuizIDs) == 0 {
			return attempts, 0, nil
		}
		q = q.Where("a.quiz_id IN (?)", bun.In(f.QuizIDs))
	}
	if f.Status != "" {
		q = q.Where("a.status = ?", f.Status)
	}
	if f.OnlyValid {
		q = q.Where("a.is_valid")
	}
	total, err := q.Order("a.started_at DESC", "a.id DESC").
		Limit(f.Limit()).Offset(f.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, total, nil
}

func (s *Store) PendingAnswers(ctx context.Context, quizID, createdBy int64) ([]domain.PendingAnswer, error) {
	var rows []struct {
		domain.Answer `bun:",extend"`
		UserID        int64 `bun:"user_id"`
		QuizID        int64 `bun:"quiz_id"`
	}
	q := s.db.NewSelect().
		Model(&rows).
		ColumnExpr("an.*").
		ColumnExpr("a.user_id, a.quiz_id").
		Join("JOIN attempts AS a ON a.id = an.attempt_id").
		Join("JOIN quizzes AS q ON q.id = a.quiz_id").
		Where("an.is_manually_graded").
		Where("an.graded_at IS NULL").
		Where("a.status = ?", domain.AttemptCompleted)
	if quizID != 0 {
		q = q.Where("a.quiz_id = ?", quizID)
	}
	if createdBy != 0 {
		q = q.Where("q.created_by = ?", createdBy)
	}
	if err := q.Order("an.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list pending answers: %w", err)
	}

	out := make([]domain.PendingAnswer, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.QuestionID)
	}
	questions := make([]domain.Question, 0, len(ids))
	err := s.db.NewSelect().Model(&questions).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("o.position ASC", "o.id ASC")
		}).
		Where("qu.id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending questions: %w", err)
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, question := range questions {
		byID[question.ID] = question
	}
	for _, r := range rows {
		out = append(out, domain.PendingAnswer{
			Answer:   r.Answer,
			Question: byID[r.QuestionID],
			UserID:   r.UserID,
			QuizID:   r.QuizID,
		})
	}
	return out, nil
}

func (s *Store) CompletedAttempts(ctx context.Context, quizID int64, onlyValid bool) ([]domain.Attempt, error) {
	attempts := make([]domain.Attempt, 0)
	q := s.db.NewSelect().Model(&attempts).
		Where("a.quiz_id = ?", quizID).
		Where("a.status = ?", domain.AttemptCompleted)
	if onlyValid {
		q = q.Where("a.is_valid")
	}
	if err := q.Order("a.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	return attempts, nil
}

func (s *Store) QuizzesWithCompletions(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0)
	err := s.db.NewSelect().Model((*domain.Attempt)(nil)).
		ColumnExpr("DISTINCT a.quiz_id").
		Where("a.status = ?", domain.AttemptCompleted).
		OrderExpr("a.quiz_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list quizzes with completions: %w", err)
	}
	return ids, nil
}

func orderAnswers(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("an.id ASC")
}
