package memory

import (
	"context"
	"sort"
	"strings"

	"quiz-platform/internal/domain"
)

func (s *Store) CreateCourse(_ context.Context, c *domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	row := *c
	row.Lessons = nil
	s.courses[c.ID] = row
	return nil
}

func (s *Store) UpdateCourse(_ context.Context, c *domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[c.ID]; !ok {
		return domain.ErrCourseNotFound
	}
	row := *c
	row.Lessons = nil
	s.courses[c.ID] = row
	return nil
}

func (s *Store) DeleteCourse(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return domain.ErrCourseNotFound
	}
	delete(s.courses, id)
	for lid, l := range s.lessons {
		if l.CourseID == id {
			delete(s.lessons, lid)
		}
	}
	return nil
}

func (s *Store) CourseByID(_ context.Context, id int64) (domain.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return s.withLessons(c), nil
}

func (s *Store) CourseBySlug(_ context.Context, slug string) (domain.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.courses {
		if c.Slug == slug {
			return s.withLessons(c), nil
		}
	}
	return domain.Course{}, domain.ErrCourseNotFound
}

func (s *Store) ListCourses(_ context.Context, f domain.CourseFilter) ([]domain.Course, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	list := make([]domain.Course, 0)
	for _, c := range s.courses {
		switch {
		case !f.AllStatuses && !c.Published():
			continue
		case f.Level != "" && c.Level != f.Level:
			continue
		case f.InstructorID != 0 && c.InstructorID != f.InstructorID:
			continue
		case search != "" && !strings.Contains(strings.ToLower(c.Title), search) &&
			!strings.Contains(strings.ToLower(c.Description), search):
			continue
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return page(list, f.Page), len(list), nil
}

func (s *Store) SlugTaken(_ context.Context, slug string, exceptID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.courses {
		if c.ID != exceptID && c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateLesson(_ context.Context, l *domain.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[l.CourseID]; !ok {
		return domain.ErrCourseNotFound
	}
	l.ID = s.nextID()
	s.lessons[l.ID] = *l
	return nil
}

func (s *Store) UpdateLesson(_ context.Context, l *domain.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[l.ID]; !ok {
		return domain.ErrLessonNotFound
	}
	s.lessons[l.ID] = *l
	return nil
}

func (s *Store) DeleteLesson(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[id]; !ok {
		return domain.ErrLessonNotFound
	}
	delete(s.lessons, id)
	return nil
}

func (s *Store) LessonByID(_ context.Context, id int64) (domain.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	return l, nil
}

func (s *Store) CreateEnrollment(_ context.Context, e *domain.Enrollment, maxEnrollments int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, other := range s.enrollments {
		if other.CourseID != e.CourseID {
			continue
		}
		if other.UserID == e.UserID {
			return domain.ErrAlreadyEnrolled
		}
		if other.Status != domain.EnrollmentDropped {
			active++
		}
	}
	if maxEnrollments > 0 && active >= maxEnrollments {
		return domain.ErrCourseFull
	}
	e.ID = s.nextID()
	s.enrollments[e.ID] = *e
	return nil
}

func (s *Store) UpdateEnrollment(_ context.Context, e *domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[e.ID]; !ok {
		return domain.ErrEnrollmentNotFound
	}
	s.enrollments[e.ID] = *e
	return nil
}

func (s *Store) EnrollmentFor(_ context.Context, userID, courseID int64) (domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return e, nil
		}
	}
	return domain.Enrollment{}, domain.ErrEnrollmentNotFound
}

func (s *Store) ListEnrollments(_ context.Context, userID int64) ([]domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.Enrollment, 0)
	for _, e := range s.enrollments {
		if e.UserID == userID {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

func (s *Store) SaveLessonProgress(_ context.Context, p *domain.LessonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.progress {
		if existing.EnrollmentID == p.EnrollmentID && existing.LessonID == p.LessonID {
			p.ID = id
			s.progress[id] = *p
			return nil
		}
	}
	p.ID = s.nextID()
	s.progress[p.ID] = *p
	return nil
}

func (s *Store) LessonProgressFor(_ context.Context, enrollmentID int64) ([]domain.LessonProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.LessonProgress, 0)
	for _, p := range s.progress {
		if p.EnrollmentID == enrollmentID {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (s *Store) UpsertRating(_ context.Context, r *domain.CourseRating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.ratings {
		if existing.UserID == r.UserID && existing.CourseID == r.CourseID {
			r.ID = id
			r.CreatedAt = existing.CreatedAt
			s.ratings[id] = *r
			return nil
		}
	}
	r.ID = s.nextID()
	s.ratings[r.ID] = *r
	return nil
}

func (s *Store) ListRatings(_ context.Context, courseID int64) ([]domain.CourseRating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]domain.CourseRating, 0)
	for _, r := range s.ratings {
		if r.CourseID == courseID {
			list = append(list, r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return list, nil
}

// withLessons must be called with mu held.
func (s *Store) withLessons(c domain.Course) domain.Course {
	c.Lessons = nil
	for _, l := range s.lessons {
		if l.CourseID == c.ID {
			c.Lessons = append(c.Lessons, l)
		}
	}
	sort.Slice(c.Lessons, func(i, j int) bool { return c.Lessons[i].Order < c.Lessons[j].Order })
	return c
}
