package memory

import (
	"context"
	"sort"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func (s *Store) CreateAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Status == domain.AttemptInProgress {
		for _, other := range s.attempts {
			if other.UserID == a.UserID && other.QuizID == a.QuizID && other.Status == domain.AttemptInProgress {
				return domain.ErrAttemptInProgress
			}
		}
	}
	a.ID = s.nextID()
	s.attempts[a.ID] = attemptRow(*a)
	return nil
}

func (s *Store) InProgressAttempt(_ context.Context, userID, quizID int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Status == domain.AttemptInProgress {
			return s.withAnswers(a), nil
		}
	}
	return domain.Attempt{}, domain.ErrAttemptNotFound
}

func (s *Store) CountCompleted(_ context.Context, userID, quizID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.Completed() {
			n++
		}
	}
	return n, nil
}

func (s *Store) AttemptByID(_ context.Context, id int64) (domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return s.withAnswers(a), nil
}

// UpdateAttempt holds the store lock for the whole mutation, which serializes it like a row lock.
func (s *Store) UpdateAttempt(_ context.Context, id int64, fn app.AttemptMutation) (domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	a := s.withAnswers(row)
	changed, err := fn(&a)
	if err != nil {
		return domain.Attempt{}, err
	}

	for _, ans := range changed {
		ans.AttemptID = id
		if ans.ID == 0 {
			ans.ID = s.nextID()
		}
		ans.SelectedOptionIDs = cloneIDs(ans.SelectedOptionIDs)
		s.answers[ans.ID] = ans
	}
	a.ID = id
	s.attempts[id] = attemptRow(a)
	return s.withAnswers(s.attempts[id]), nil
}

func (s *Store) AnswerByID(_ context.Context, id int64) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ans, ok := s.answers[id]
	if !ok {
		return domain.Answer{}, domain.ErrAnswerNotFound
	}
	ans.SelectedOptionIDs = cloneIDs(ans.SelectedOptionIDs)
	return ans, nil
}

func (s *Store) ListAttempts(_ context.Context, f domain.AttemptFilter) ([]domain.Attempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quizIDs := make(map[int64]bool, len(f.QuizIDs))
	for _, id := range f.QuizIDs {
		quizIDs[id] = true
	}
	list := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		switch {
		case f.UserID != 0 && a.UserID != f.UserID:
			continue
		case f.QuizID != 0 && a.QuizID != f.QuizID:
			continue
		case f.QuizIDs != nil && !quizIDs[a.QuizID]:
			continue
		case f.Status != "" && a.Status != f.Status:
			continue
		case f.OnlyValid && !a.IsValid:
			continue
		}
		a.QuestionIDs = cloneIDs(a.QuestionIDs)
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].StartedAt.After(list[j].StartedAt)
		}
		return list[i].ID > list[j].ID
	})
	return page(list, f.Page), len(list), nil
}

func (s *Store) PendingAnswers(_ context.Context, quizID, createdBy int64) ([]domain.PendingAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PendingAnswer, 0)
	for _, ans := range s.answers {
		if !ans.AwaitingGrade() {
			continue
		}
		a, ok := s.attempts[ans.AttemptID]
		if !ok || !a.Completed() {
			continue
		}
		if quizID != 0 && a.QuizID != quizID {
			continue
		}
		if createdBy != 0 && s.quizzes[a.QuizID].CreatedBy != createdBy {
			continue
		}
		ans.SelectedOptionIDs = cloneIDs(ans.SelectedOptionIDs)
		out = append(out, domain.PendingAnswer{
			Answer:   ans,
			Question: cloneQuestion(s.questions[ans.QuestionID]),
			UserID:   a.UserID,
			QuizID:   a.QuizID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Answer.ID < out[j].Answer.ID })
	return out, nil
}

func (s *Store) CompletedAttempts(_ context.Context, quizID int64, onlyValid bool) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if a.QuizID != quizID || !a.Completed() || (onlyValid && !a.IsValid) {
			continue
		}
		a.QuestionIDs = cloneIDs(a.QuestionIDs)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) QuizzesWithCompletions(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]bool)
	ids := make([]int64, 0)
	for _, a := range s.attempts {
		if a.Completed() && !seen[a.QuizID] {
			seen[a.QuizID] = true
			ids = append(ids, a.QuizID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// withAnswers must be called with mu held.
func (s *Store) withAnswers(a domain.Attempt) domain.Attempt {
	a.QuestionIDs = cloneIDs(a.QuestionIDs)
	a.Answers = nil
	for _, ans := range s.answers {
		if ans.AttemptID == a.ID {
			ans.SelectedOptionIDs = cloneIDs(ans.SelectedOptionIDs)
			a.Answers = append(a.Answers, ans)
		}
	}
	sort.Slice(a.Answers, func(i, j int) bool { return a.Answers[i].ID < a.Answers[j].ID })
	return a
}

func attemptRow(a domain.Attempt) domain.Attempt {
	a.Answers = nil
	a.QuestionIDs = cloneIDs(a.QuestionIDs)
	return a
}
