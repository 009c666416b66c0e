package memory

import (
	"context"
	"sort"
	"strings"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func (s *Store) CreateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.ID = s.nextID()
	s.quizzes[q.ID] = quizHeader(*q)
	return nil
}

func (s *Store) UpdateQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[q.ID]; !ok {
		return domain.ErrQuizNotFound
	}
	s.quizzes[q.ID] = quizHeader(*q)
	return nil
}

func (s *Store) DeleteQuiz(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[id]; !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, id)
	for qid, q := range s.questions {
		if q.QuizID == id {
			delete(s.questions, qid)
		}
	}
	return nil
}

func (s *Store) QuizByID(_ context.Context, id int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quizLocked(id)
}

// LoadQuiz makes the store usable as the quiz cache's loader.
func (s *Store) LoadQuiz(ctx context.Context, id int64) (domain.Quiz, error) {
	return s.QuizByID(ctx, id)
}

func (s *Store) quizLocked(id int64) (domain.Quiz, error) {
	q, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	q.Tags = append([]domain.Tag(nil), q.Tags...)
	q.Questions = nil
	for _, question := range s.questions {
		if question.QuizID == id {
			q.Questions = append(q.Questions, cloneQuestion(question))
		}
	}
	sort.Slice(q.Questions, func(i, j int) bool {
		if q.Questions[i].Position != q.Questions[j].Position {
			return q.Questions[i].Position < q.Questions[j].Position
		}
		return q.Questions[i].ID < q.Questions[j].ID
	})
	return q, nil
}

func (s *Store) ListQuizzes(_ context.Context, f domain.QuizFilter) ([]domain.Quiz, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	list := make([]domain.Quiz, 0)
	for _, q := range s.quizzes {
		if !f.IncludeUnpublished && !q.IsPublished {
			continue
		}
		if f.Difficulty != "" && q.Difficulty != f.Difficulty {
			continue
		}
		if f.CreatedBy != 0 && q.CreatedBy != f.CreatedBy {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Title), search) &&
			!strings.Contains(strings.ToLower(q.Description), search) {
			continue
		}
		if f.Tag != "" && !hasTag(q, f.Tag) {
			continue
		}
		q.Tags = append([]domain.Tag(nil), q.Tags...)
		list = append(list, q)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return page(list, f.Page), len(list), nil
}

func (s *Store) TitleTaken(_ context.Context, title string, exceptID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quizzes {
		if q.ID != exceptID && strings.EqualFold(q.Title, title) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[q.QuizID]; !ok {
		return domain.ErrQuizNotFound
	}
	q.ID = s.nextID()
	s.assignOptionIDs(q)
	s.questions[q.ID] = cloneQuestion(*q)
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[q.ID]; !ok {
		return domain.ErrQuestionNotFound
	}
	s.assignOptionIDs(q)
	s.questions[q.ID] = cloneQuestion(*q)
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[id]; !ok {
		return domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	return nil
}

func (s *Store) QuestionByID(_ context.Context, id int64) (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return cloneQuestion(q), nil
}

func (s *Store) EnsureTags(_ context.Context, names []string) ([]domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Tag, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := tagSlug(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true

		var found *domain.Tag
		for _, t := range s.tags {
			if t.Slug == slug {
				t := t
				found = &t
				break
			}
		}
		if found == nil {
			t := domain.Tag{ID: s.nextID(), Name: name, Slug: slug}
			s.tags[t.ID] = t
			found = &t
		}
		out = append(out, *found)
	}
	return out, nil
}

func (s *Store) ListTags(_ context.Context) ([]domain.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

// assignOptionIDs gives new options IDs; must be called with mu held.
func (s *Store) assignOptionIDs(q *domain.Question) {
	for i := range q.Options {
		if q.Options[i].ID == 0 {
			q.Options[i].ID = s.nextID()
		}
		q.Options[i].QuestionID = q.ID
	}
}

func quizHeader(q domain.Quiz) domain.Quiz {
	q.Questions = nil
	q.Tags = append([]domain.Tag(nil), q.Tags...)
	return q
}

func cloneQuestion(q domain.Question) domain.Question {
	q.Options = append([]domain.Option(nil), q.Options...)
	return q
}

func hasTag(q domain.Quiz, tag string) bool {
	slug := tagSlug(tag)
	for _, t := range q.Tags {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

func tagSlug(name string) string {
	return app.Slugify(name)
}
