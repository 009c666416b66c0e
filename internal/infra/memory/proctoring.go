package memory

import (
	"context"
	"sort"
	"time"

	"quiz-platform/internal/domain"
)

func (s *Store) CreateSession(_ context.Context, sess *domain.ProctoringSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.sessions {
		if other.UserID == sess.UserID && other.QuizID == sess.QuizID && other.Open() {
			return domain.ErrSessionActive
		}
	}
	sess.ID = s.nextID()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) SessionByID(_ context.Context, id int64) (domain.ProctoringSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ProctoringSession{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *Store) UpdateSession(_ context.Context, sess *domain.ProctoringSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) AddViolation(_ context.Context, v *domain.Violation, fn func(*domain.ProctoringSession) error) (domain.ProctoringSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[v.SessionID]
	if !ok {
		return domain.ProctoringSession{}, domain.ErrSessionNotFound
	}
	if err := fn(&sess); err != nil {
		return domain.ProctoringSession{}, err
	}
	v.ID = s.nextID()
	s.violations[v.ID] = *v
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Store) ViolationByID(_ context.Context, id int64) (domain.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.violations[id]
	if !ok {
		return domain.Violation{}, domain.ErrViolationNotFound
	}
	return v, nil
}

func (s *Store) UpdateViolation(_ context.Context, v *domain.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.violations[v.ID]; !ok {
		return domain.ErrViolationNotFound
	}
	s.violations[v.ID] = *v
	return nil
}

func (s *Store) ListViolations(_ context.Context, sessionID int64) ([]domain.Violation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Violation, 0)
	for _, v := range s.violations {
		if v.SessionID == sessionID {
			list = append(list, v)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) Settings(_ context.Context, quizID int64) (domain.ProctoringSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.settings[quizID]; ok {
		return st, nil
	}
	return domain.DefaultProctoringSettings(quizID), nil
}

func (s *Store) SaveSettings(_ context.Context, st *domain.ProctoringSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[st.QuizID] = *st
	return nil
}

func (s *Store) CloseStaleSessions(_ context.Context, cutoff, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.Status != domain.ProctoringActive || sess.EndedAt != nil || !sess.StartedAt.Before(cutoff) {
			continue
		}
		sess.Status = domain.ProctoringCompleted
		sess.EndedAt = &now
		s.sessions[id] = sess
		n++
	}
	return n, nil
}
