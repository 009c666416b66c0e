package postgres

import (
	"context"
	"fmt"

	"quiz-platform/internal/domain"
)

func (s *Store) CreatePayment(ctx context.Context, p *domain.Payment) error {
	if _, err := s.db.NewInsert().Model(p).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	res, err := s.db.NewUpdate().Model(p).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return affected(res, domain.ErrPaymentNotFound)
}

func (s *Store) PaymentByID(ctx context.Context, id int64) (domain.Payment, error) {
	var p domain.Payment
	if err := s.db.NewSelect().Model(&p).Where("p.id = ?", id).Scan(ctx); err != nil {
		return domain.Payment{}, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (s *Store) PaymentByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	var p domain.Payment
	if err := s.db.NewSelect().Model(&p).Where("p.order_id = ?", orderID).Scan(ctx); err != nil {
		return domain.Payment{}, notFound(err, domain.ErrPaymentNotFound)
	}
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, userID int64) ([]domain.Payment, error) {
	list := make([]domain.Payment, 0)
	if err := s.db.NewSelect().Model(&list).Where("p.user_id = ?", userID).Order("p.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}

func (s *Store) HasCompletedPurchase(ctx context.Context, userID, courseID int64) (bool, error) {
	ok, err := s.db.NewSelect().Model((*domain.Payment)(nil)).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Where("type = ?", domain.PaymentCoursePurchase).
		Where("status = ?", domain.PaymentCompleted).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return ok, nil
}

func (s *Store) RecordEvent(ctx context.Context, e *domain.PaymentEvent) error {
	if _, err := s.db.NewInsert().Model(e).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	return nil
}
