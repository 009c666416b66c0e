package memory

import (
	"context"
	"sort"

	"quiz-platform/internal/domain"
)

func (s *Store) CreatePayment(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) UpdatePayment(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *Store) PaymentByID(_ context.Context, id int64) (domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (s *Store) PaymentByOrderID(_ context.Context, orderID string) (domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, userID int64) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Payment, 0)
	for _, p := range s.payments {
		if p.UserID == userID {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (s *Store) HasCompletedPurchase(_ context.Context, userID, courseID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.UserID == userID && p.Type == domain.PaymentCoursePurchase && p.Status == domain.PaymentCompleted &&
			p.CourseID != nil && *p.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RecordEvent(_ context.Context, e *domain.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.nextID()
	s.paymentLog = append(s.paymentLog, *e)
	return nil
}

// PaymentEvents returns the logged gateway notifications in arrival order.
func (s *Store) PaymentEvents() []domain.PaymentEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.PaymentEvent(nil), s.paymentLog...)
}
