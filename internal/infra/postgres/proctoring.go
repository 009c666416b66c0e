package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-platform/internal/domain"
)

// CreateSession relies on the partial unique index proctoring_sessions_one_open.
func (s *Store) CreateSession(ctx context.Context, sess *domain.ProctoringSession) error {
	_, err := s.db.NewInsert().Model(sess).Returning("id").Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrSessionActive
	}
	if err != nil {
		return fmt.Errorf("insert proctoring session: %w", err)
	}
	return nil
}

func (s *Store) SessionByID(ctx context.Context, id int64) (domain.ProctoringSession, error) {
	var sess domain.ProctoringSession
	if err := s.db.NewSelect().Model(&sess).Where("ps.id = ?", id).Scan(ctx); err != nil {
		return domain.ProctoringSession{}, notFound(err, domain.ErrSessionNotFound)
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *domain.ProctoringSession) error {
	res, err := s.db.NewUpdate().Model(sess).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update proctoring session: %w", err)
	}
	return affected(res, domain.ErrSessionNotFound)
}

func (s *Store) AddViolation(ctx context.Context, v *domain.Violation, fn func(*domain.ProctoringSession) error) (domain.ProctoringSession, error) {
	var out domain.ProctoringSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var sess domain.ProctoringSession
		if err := tx.NewSelect().Model(&sess).Where("ps.id = ?", v.SessionID).For("UPDATE").Scan(ctx); err != nil {
			return notFound(err, domain.ErrSessionNotFound)
		}
		if err := fn(&sess); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(v).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
		if _, err := tx.NewUpdate().Model(&sess).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update proctoring session: %w", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return domain.ProctoringSession{}, err
	}
	return out, nil
}

func (s *Store) ViolationByID(ctx context.Context, id int64) (domain.Violation, error) {
	var v domain.Violation
	if err := s.db.NewSelect().Model(&v).Where("v.id = ?", id).Scan(ctx); err != nil {
		return domain.Violation{}, notFound(err, domain.ErrViolationNotFound)
	}
	return v, nil
}

func (s *Store) UpdateViolation(ctx context.Context, v *domain.Violation) error {
	res, err := s.db.NewUpdate().Model(v).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update violation: %w", err)
	}
	return affected(res, domain.ErrViolationNotFound)
}

func (s *Store) ListViolations(ctx context.Context, sessionID int64) ([]domain.Violation, error) {
	list := make([]domain.Violation, 0)
	if err := s.db.NewSelect().Model(&list).Where("v.session_id = ?", sessionID).Order("v.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	return list, nil
}

func (s *Store) Settings(ctx context.Context, quizID int64) (domain.ProctoringSettings, error) {
	var st domain.ProctoringSettings
	err := s.db.NewSelect().Model(&st).Where("pst.quiz_id = ?", quizID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultProctoringSettings(quizID), nil
	}
	if err != nil {
		return domain.ProctoringSettings{}, fmt.Errorf("load proctoring settings: %w", err)
	}
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st *domain.ProctoringSettings) error {
	_, err := s.db.NewInsert().Model(st).
		On("CONFLICT (quiz_id) DO UPDATE").
		Set("enable_webcam = EXCLUDED.enable_webcam").
		Set("face_detection = EXCLUDED.face_detection").
		Set("multiple_face_detection = EXCLUDED.multiple_face_detection").
		Set("prevent_tab_switch = EXCLUDED.prevent_tab_switch").
		Set("prevent_fullscreen_exit = EXCLUDED.prevent_fullscreen_exit").
		Set("prevent_copy_paste = EXCLUDED.prevent_copy_paste").
		Set("risk_threshold = EXCLUDED.risk_threshold").
		Set("auto_terminate = EXCLUDED.auto_terminate").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save proctoring settings: %w", err)
	}
	return nil
}

func (s *Store) CloseStaleSessions(ctx context.Context, cutoff, now time.Time) (int, error) {
	res, err := s.db.NewUpdate().Model((*domain.ProctoringSession)(nil)).
		Set("status = ?", domain.ProctoringCompleted).
		Set("ended_at = ?", now).
		Where("status = ?", domain.ProctoringActive).
		Where("ended_at IS NULL").
		Where("started_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("close stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
