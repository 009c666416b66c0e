package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"quiz-platform/internal/domain"
)

func (s *Store) CreateCourse(ctx context.Context, c *domain.Course) error {
	if _, err := s.db.NewInsert().Model(c).Returning("id").Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.FieldValidationError("slug", "slug already in use")
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (s *Store) UpdateCourse(ctx context.Context, c *domain.Course) error {
	res, err := s.db.NewUpdate().Model(c).WherePK().Exec(ctx)
	if isUniqueViolation(err) {
		return domain.FieldValidationError("slug", "slug already in use")
	}
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return affected(res, domain.ErrCourseNotFound)
}

func (s *Store) DeleteCourse(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Course)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return affected(res, domain.ErrCourseNotFound)
}

func (s *Store) CourseByID(ctx context.Context, id int64) (domain.Course, error) {
	var c domain.Course
	if err := s.db.NewSelect().Model(&c).Relation("Lessons", orderLessons).Where("c.id = ?", id).Scan(ctx); err != nil {
		return domain.Course{}, notFound(err, domain.ErrCourseNotFound)
	}
	return c, nil
}

func (s *Store) CourseBySlug(ctx context.Context, slug string) (domain.Course, error) {
	var c domain.Course
	if err := s.db.NewSelect().Model(&c).Relation("Lessons", orderLessons).Where("c.slug = ?", slug).Scan(ctx); err != nil {
		return domain.Course{}, notFound(err, domain.ErrCourseNotFound)
	}
	return c, nil
}

func (s *Store) ListCourses(ctx context.Context, f domain.CourseFilter) ([]domain.Course, int, error) {
	courses := make([]domain.Course, 0)
	q := s.db.NewSelect().Model(&courses)
	if !f.AllStatuses {
		q = q.Where("c.status = ?", domain.CoursePublished)
	}
	if f.Level != "" {
		q = q.Where("c.level = ?", f.Level)
	}
	if f.InstructorID != 0 {
		q = q.Where("c.instructor_id = ?", f.InstructorID)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + search + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("c.title ILIKE ?", like).WhereOr("c.description ILIKE ?", like)
		})
	}
	total, err := q.Order("c.id DESC").Limit(f.Limit()).Offset(f.Offset()).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	return courses, total, nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string, exceptID int64) (bool, error) {
	ok, err := s.db.NewSelect().Model((*domain.Course)(nil)).
		Where("slug = ?", slug).
		Where("id <> ?", exceptID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return ok, nil
}

func (s *Store) CreateLesson(ctx context.Context, l *domain.Lesson) error {
	exists, err := s.db.NewSelect().Model((*domain.Course)(nil)).Where("id = ?", l.CourseID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check course: %w", err)
	}
	if !exists {
		return domain.ErrCourseNotFound
	}
	if _, err := s.db.NewInsert().Model(l).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

func (s *Store) UpdateLesson(ctx context.Context, l *domain.Lesson) error {
	res, err := s.db.NewUpdate().Model(l).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return affected(res, domain.ErrLessonNotFound)
}

func (s *Store) DeleteLesson(ctx context.Context, id int64) error {
	res, err := s.db.NewDelete().Model((*domain.Lesson)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	return affected(res, domain.ErrLessonNotFound)
}

func (s *Store) LessonByID(ctx context.Context, id int64) (domain.Lesson, error) {
	var l domain.Lesson
	if err := s.db.NewSelect().Model(&l).Where("l.id = ?", id).Scan(ctx); err != nil {
		return domain.Lesson{}, notFound(err, domain.ErrLessonNotFound)
	}
	return l, nil
}

// CreateEnrollment locks the course row so concurrent enrollments cannot overshoot the limit.
func (s *Store) CreateEnrollment(ctx context.Context, e *domain.Enrollment, maxEnrollments int) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var courseID int64
		err := tx.NewSelect().Model((*domain.Course)(nil)).
			Column("id").
			Where("id = ?", e.CourseID).
			For("UPDATE").
			Scan(ctx, &courseID)
		if err != nil {
			return notFound(err, domain.ErrCourseNotFound)
		}

		exists, err := tx.NewSelect().Model((*domain.Enrollment)(nil)).
			Where("user_id = ?", e.UserID).
			Where("course_id = ?", e.CourseID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("check enrollment: %w", err)
		}
		if exists {
			return domain.ErrAlreadyEnrolled
		}

		if maxEnrollments > 0 {
			n, err := tx.NewSelect().Model((*domain.Enrollment)(nil)).
				Where("course_id = ?", e.CourseID).
				Where("status <> ?", domain.EnrollmentDropped).
				Count(ctx)
			if err != nil {
				return fmt.Errorf("count enrollments: %w", err)
			}
			if n >= maxEnrollments {
				return domain.ErrCourseFull
			}
		}

		_, err = tx.NewInsert().Model(e).Returning("id").Exec(ctx)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyEnrolled
		}
		if err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error {
	res, err := s.db.NewUpdate().Model(e).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return affected(res, domain.ErrEnrollmentNotFound)
}

func (s *Store) EnrollmentFor(ctx context.Context, userID, courseID int64) (domain.Enrollment, error) {
	var e domain.Enrollment
	err := s.db.NewSelect().Model(&e).
		Where("e.user_id = ?", userID).
		Where("e.course_id = ?", courseID).
		Scan(ctx)
	if err != nil {
		return domain.Enrollment{}, notFound(err, domain.ErrEnrollmentNotFound)
	}
	return e, nil
}

func (s *Store) ListEnrollments(ctx context.Context, userID int64) ([]domain.Enrollment, error) {
	list := make([]domain.Enrollment, 0)
	if err := s.db.NewSelect().Model(&list).Where("e.user_id = ?", userID).Order("e.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return list, nil
}

func (s *Store) SaveLessonProgress(ctx context.Context, p *domain.LessonProgress) error {
	_, err := s.db.NewInsert().Model(p).
		On("CONFLICT (enrollment_id, lesson_id) DO UPDATE").
		Set("started_at = EXCLUDED.started_at").
		Set("completed_at = EXCLUDED.completed_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save lesson progress: %w", err)
	}
	return nil
}

func (s *Store) LessonProgressFor(ctx context.Context, enrollmentID int64) ([]domain.LessonProgress, error) {
	list := make([]domain.LessonProgress, 0)
	if err := s.db.NewSelect().Model(&list).Where("lp.enrollment_id = ?", enrollmentID).Order("lp.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list lesson progress: %w", err)
	}
	return list, nil
}

// UpsertRating keeps the first created_at of a (user, course) rating.
func (s *Store) UpsertRating(ctx context.Context, r *domain.CourseRating) error {
	_, err := s.db.NewInsert().Model(r).
		On("CONFLICT (user_id, course_id) DO UPDATE").
		Set("rating = EXCLUDED.rating").
		Set("review = EXCLUDED.review").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert rating: %w", err)
	}
	return nil
}

func (s *Store) ListRatings(ctx context.Context, courseID int64) ([]domain.CourseRating, error) {
	list := make([]domain.CourseRating, 0)
	if err := s.db.NewSelect().Model(&list).Where("cr.course_id = ?", courseID).Order("cr.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return list, nil
}

func orderLessons(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("l.lesson_order ASC", "l.id ASC")
}
