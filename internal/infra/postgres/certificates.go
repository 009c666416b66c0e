package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quiz-platform/internal/domain"
)

// CreateCertificate inserts with ON CONFLICT DO NOTHING against the per-subject unique
// indexes; when nothing was inserted the existing certificate is returned instead.
func (s *Store) CreateCertificate(ctx context.Context, c domain.Certificate) (domain.Certificate, bool, error) {
	err := s.db.NewInsert().Model(&c).On("CONFLICT DO NOTHING").Returning("*").Scan(ctx)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Certificate{}, false, fmt.Errorf("insert certificate: %w", err)
	}

	var existing domain.Certificate
	q := s.db.NewSelect().Model(&existing).
		Where("ce.user_id = ?", c.UserID).
		Where("ce.kind = ?", c.Kind)
	if c.Kind == domain.CertificateCourse {
		q = q.Where("ce.course_id = ?", c.CourseID)
	} else {
		q = q.Where("ce.quiz_id = ?", c.QuizID)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return domain.Certificate{}, false, fmt.Errorf("load existing certificate: %w", err)
	}
	return existing, false, nil
}

func (s *Store) SetCertificateFile(ctx context.Context, id int64, url string) error {
	res, err := s.db.NewUpdate().Model((*domain.Certificate)(nil)).
		Set("file_url = ?", url).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set certificate file: %w", err)
	}
	return affected(res, domain.ErrCertificateNotFound)
}

func (s *Store) CertificateByUUID(ctx context.Context, id string) (domain.Certificate, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	var c domain.Certificate
	if err := s.db.NewSelect().Model(&c).Where("ce.uuid = ?", uid).Scan(ctx); err != nil {
		return domain.Certificate{}, notFound(err, domain.ErrCertificateNotFound)
	}
	return c, nil
}

func (s *Store) CertificateByNumber(ctx context.Context, number string) (domain.Certificate, error) {
	var c domain.Certificate
	if err := s.db.NewSelect().Model(&c).Where("ce.number = ?", number).Scan(ctx); err != nil {
		return domain.Certificate{}, notFound(err, domain.ErrCertificateNotFound)
	}
	return c, nil
}

func (s *Store) ListCertificates(ctx context.Context, userID int64) ([]domain.Certificate, error) {
	certs := make([]domain.Certificate, 0)
	if err := s.db.NewSelect().Model(&certs).Where("ce.user_id = ?", userID).Order("ce.issued_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}
