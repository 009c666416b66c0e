package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

var titleTaken = domain.FieldValidationError("title", "a quiz with this title already exists")

func (s *Store) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(q).Returning("id").Exec(ctx)
		if isUniqueViolation(err) {
			return titleTaken
		}
		if err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		return replaceQuizTags(ctx, tx, q.ID, q.Tags)
	})
}

func (s *Store) UpdateQuiz(ctx context.Context, q *domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(q).WherePK().Exec(ctx)
		if isUniqueViolation(err) {
			return titleTaken
		}
		if err != nil {
			return fmt.Errorf("update quiz: %w", err)
		}
		if err := affected(res, domain.ErrQuizNotFound); err != nil {
			return err
		}
		return replaceQuizTags(ctx, tx, q.ID, q.Tags)
	})
}

func replaceQuizTags(ctx context.Context, tx bun.Tx, quizID int64, tags []domain.Tag) error {
	if _, err := tx.NewDelete().Model((*domain.QuizTag)(nil)).Where("quiz_id = ?", quizID).Exec(ctx); err != nil {
		return fmt.Errorf("clear quiz tags: %w", err)
	}
	if len(tags) == 0 {
		return nil
	}
	rows := make([]domain.QuizTag, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, domain.QuizTag{QuizID: quizID, TagID: t.ID})
	}
	if _, err := tx.NewInsert().Model(&rows).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert quiz tags: %w", err)
	}
	return nil
}

// DeleteQuiz relies on ON DELETE CASCADE for questions, options and tag links.
func (s *Store) DeleteQuiz(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Quiz)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}
	return affected(res, domain.ErrQuizNotFound)
}

func (s *Store) QuizByID(ctx context.Context, id int64) (domain.Quiz, error) {
	var q domain.Quiz
	err := s.db.NewSelect().Model(&q).Relation("Tags").Where("q.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.Quiz{}, notFound(err, domain.ErrQuizNotFound)
	}
	questions, err := s.questionsOf(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	q.Questions = questions
	return q, nil
}

func (s *Store) questionsOf(ctx context.Context, quizID int64) ([]domain.Question, error) {
	questions := make([]domain.Question, 0)
	err := s.db.NewSelect().Model(&questions).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("o.position ASC", "o.id ASC")
		}).
		Where("qu.quiz_id = ?", quizID).
		Order("qu.position ASC", "qu.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func (s *Store) ListQuizzes(ctx context.Context, f domain.QuizFilter) ([]domain.Quiz, int, error) {
	quizzes := make([]domain.Quiz, 0)
	q := s.db.NewSelect().Model(&quizzes).Relation("Tags")
	if !f.IncludeUnpublished {
		q = q.Where("q.is_published")
	}
	if f.Difficulty != "" {
		q = q.Where("q.difficulty = ?", f.Difficulty)
	}
	if f.CreatedBy != 0 {
		q = q.Where("q.created_by = ?", f.CreatedBy)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("q.title ILIKE ?", like).WhereOr("q.description ILIKE ?", like)
		})
	}
	if f.Tag != "" {
		q = q.Where(`EXISTS (SELECT 1 FROM quiz_tags AS qt JOIN tags AS tg ON tg.id = qt.tag_id
			WHERE qt.quiz_id = q.id AND tg.slug = ?)`, app.Slugify(f.Tag))
	}
	total, err := q.Order("q.id DESC").Limit(f.Limit()).Offset(f.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, total, nil
}

func (s *Store) TitleTaken(ctx context.Context, title string, exceptID int64) (bool, error) {
	ok, err := s.db.NewSelect().Model((*domain.Quiz)(nil)).
		Where("lower(title) = lower(?)", title).
		Where("id <> ?", exceptID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return ok, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q *domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*domain.Quiz)(nil)).Where("id = ?", q.QuizID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check quiz: %w", err)
		}
		if !exists {
			return domain.ErrQuizNotFound
		}
		if _, err := tx.NewInsert().Model(q).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		return insertOptions(ctx, tx, q)
	})
}

func (s *Store) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model(q).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if err := affected(res, domain.ErrQuestionNotFound); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*domain.Option)(nil)).Where("question_id = ?", q.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear options: %w", err)
		}
		return insertOptions(ctx, tx, q)
	})
}

func insertOptions(ctx context.Context, tx bun.Tx, q *domain.Question) error {
	if len(q.Options) == 0 {
		return nil
	}
	for i := range q.Options {
		q.Options[i].ID = 0
		q.Options[i].QuestionID = q.ID
	}
	if _, err := tx.NewInsert().Model(&q.Options).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert options: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Question)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	return affected(res, domain.ErrQuestionNotFound)
}

func (s *Store) QuestionByID(ctx context.Context, id int64) (domain.Question, error) {
	var q domain.Question
	err := s.db.NewSelect().Model(&q).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("o.position ASC", "o.id ASC")
		}).
		Where("qu.id = ?", id).
		Scan(ctx)
	if err != nil {
		return domain.Question{}, notFound(err, domain.ErrQuestionNotFound)
	}
	return q, nil
}

func (s *Store) EnsureTags(ctx context.Context, names []string) ([]domain.Tag, error) {
	rows := make([]domain.Tag, 0, len(names))
	slugs := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := app.Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		rows = append(rows, domain.Tag{Name: name, Slug: slug})
		slugs = append(slugs, slug)
	}
	if len(rows) == 0 {
		return []domain.Tag{}, nil
	}
	if _, err := s.db.NewInsert().Model(&rows).On("CONFLICT (slug) DO NOTHING").Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert tags: %w", err)
	}

	tags := make([]domain.Tag, 0, len(slugs))
	if err := s.db.NewSelect().Model(&tags).Where("t.slug IN (?)", bun.In(slugs)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	bySlug := make(map[string]domain.Tag, len(tags))
	for _, t := range tags {
		bySlug[t.Slug] = t
	}
	out := make([]domain.Tag, 0, len(slugs))
	for _, slug := range slugs {
		if t, ok := bySlug[slug]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags := make([]domain.Tag, 0)
	if err := s.db.NewSelect().Model(&tags).Order("t.name ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

