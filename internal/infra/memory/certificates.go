package memory

import (
	"context"
	"sort"

	"quiz-platform/internal/domain"
)

func (s *Store) CreateCertificate(_ context.Context, c domain.Certificate) (domain.Certificate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certificates {
		if existing.UserID != c.UserID || existing.Kind != c.Kind {
			continue
		}
		if sameSubject(existing.QuizID, c.QuizID) && sameSubject(existing.CourseID, c.CourseID) {
			return existing, false, nil
		}
	}
	c.ID = s.nextID()
	s.certificates[c.ID] = c
	return c, true, nil
}

func (s *Store) SetCertificateFile(_ context.Context, id int64, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certificates[id]
	if !ok {
		return domain.ErrCertificateNotFound
	}
	c.FileURL = url
	s.certificates[id] = c
	return nil
}

func (s *Store) CertificateByUUID(_ context.Context, id string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certificates {
		if c.UUID.String() == id {
			return c, nil
		}
	}
	return domain.Certificate{}, domain.ErrCertificateNotFound
}

func (s *Store) CertificateByNumber(_ context.Context, number string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.certificates {
		if c.Number == number {
			return c, nil
		}
	}
	return domain.Certificate{}, domain.ErrCertificateNotFound
}

func (s *Store) ListCertificates(_ context.Context, userID int64) ([]domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Certificate, 0)
	for _, c := range s.certificates {
		if c.UserID == userID {
			list = append(list, c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func sameSubject(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
