package postgres

import (
	"context"
	"fmt"
	"time"

	"quiz-platform/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.NewInsert().Model(u).Returning("id").Exec(ctx)
	if isUniqueViolation(err) {
		return domain.FieldValidationError("email", "email or username already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *domain.User) error {
	res, err := s.db.NewUpdate().Model(u).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return affected(res, domain.ErrUserNotFound)
}

func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := s.db.NewSelect().Model(&u).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (s *Store) UserByLogin(ctx context.Context, login string) (domain.User, error) {
	var u domain.User
	err := s.db.NewSelect().Model(&u).
		Where("lower(u.email) = lower(?)", login).
		WhereOr("lower(u.username) = lower(?)", login).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.User{}, notFound(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*domain.User)(nil)).Where("lower(email) = lower(?)", email).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return ok, nil
}

func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*domain.User)(nil)).Where("lower(username) = lower(?)", username).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return ok, nil
}

func (s *Store) ListUsers(ctx context.Context, p domain.Page) ([]domain.User, int, error) {
	users := make([]domain.User, 0)
	total, err := s.db.NewSelect().Model(&users).
		Order("u.id ASC").
		Limit(p.Limit()).Offset(p.Offset()).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

func (s *Store) SaveToken(ctx context.Context, t *domain.UserToken) error {
	if _, err := s.db.NewInsert().Model(t).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *Store) TokenByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (domain.UserToken, error) {
	var t domain.UserToken
	err := s.db.NewSelect().Model(&t).
		Where("ut.purpose = ?", purpose).
		Where("ut.token_hash = ?", hash).
		Scan(ctx)
	if err != nil {
		return domain.UserToken{}, notFound(err, domain.ErrInvalidToken)
	}
	return t, nil
}

func (s *Store) MarkTokenUsed(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.NewUpdate().Model((*domain.UserToken)(nil)).
		Set("used_at = ?", at).
		Where("id = ?", id).
		Where("used_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	return affected(res, domain.ErrInvalidToken)
}
