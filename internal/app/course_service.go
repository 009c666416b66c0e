package app

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"quiz-platform/internal/domain"
)

type CourseInput struct {
	Title          string              `json:"title" validate:"required,max=200"`
	Slug           string              `json:"slug" validate:"omitempty,slug,max=200"`
	Description    string              `json:"description" validate:"max=10000"`
	Level          domain.CourseLevel  `json:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Status         domain.CourseStatus `json:"status" validate:"omitempty,oneof=draft published archived"`
	Price          decimal.Decimal     `json:"price"`
	IsFree         bool                `json:"is_free"`
	MaxEnrollments int                 `json:"max_enrollments" validate:"gte=0"`
}

type LessonInput struct {
	Title           string            `json:"title" validate:"required,max=200"`
	Content         string            `json:"content"`
	Type            domain.LessonType `json:"type" validate:"omitempty,oneof=video text interactive quiz"`
	QuizID          *int64            `json:"quiz_id" validate:"omitempty,gt=0"`
	DurationMinutes int               `json:"duration_minutes" validate:"gte=0"`
	Order           int               `json:"order" validate:"gte=0"`
}

type RatingInput struct {
	Rating int    `json:"rating" validate:"required,min=1,max=5"`
	Review string `json:"review" validate:"max=2000"`
}

// CourseService manages courses, lessons, enrollments, lesson progress and ratings.
type CourseService struct {
	courses  CourseRepository
	payments PaymentRepository
	queue    TaskQueue
	now      func() time.Time
	log      Logger
}

func NewCourseService(courses CourseRepository, payments PaymentRepository, queue TaskQueue, log Logger) *CourseService {
	return &CourseService{courses: courses, payments: payments, queue: queue, now: time.Now, log: orNop(log)}
}

func (s *CourseService) CreateCourse(ctx context.Context, actor Actor, in CourseInput) (domain.Course, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Course{}, err
	}
	now := s.now()
	c := domain.Course{InstructorID: actor.UserID, Status: domain.CourseDraft, CreatedAt: now}
	if err := s.applyCourseInput(ctx, &c, in, now); err != nil {
		return domain.Course{}, err
	}
	if err := s.courses.CreateCourse(ctx, &c); err != nil {
		return domain.Course{}, errors.Wrap(err, "create course")
	}
	return c, nil
}

func (s *CourseService) UpdateCourse(ctx context.Context, actor Actor, id int64, in CourseInput) (domain.Course, error) {
	c, err := s.managedCourse(ctx, actor, id)
	if err != nil {
		return domain.Course{}, err
	}
	if err := s.applyCourseInput(ctx, &c, in, s.now()); err != nil {
		return domain.Course{}, err
	}
	if err := s.courses.UpdateCourse(ctx, &c); err != nil {
		return domain.Course{}, errors.Wrap(err, "update course")
	}
	return c, nil
}

func (s *CourseService) DeleteCourse(ctx context.Context, actor Actor, id int64) error {
	if _, err := s.managedCourse(ctx, actor, id); err != nil {
		return err
	}
	return errors.Wrap(s.courses.DeleteCourse(ctx, id), "delete course")
}

// GetCourse returns a course with its lessons. Unpublished courses are visible to their instructor and admins.
func (s *CourseService) GetCourse(ctx context.Context, actor Actor, id int64) (domain.Course, error) {
	c, err := s.courses.CourseByID(ctx, id)
	if err != nil {
		return domain.Course{}, err
	}
	return s.visible(actor, c)
}

func (s *CourseService) GetCourseBySlug(ctx context.Context, actor Actor, slug string) (domain.Course, error) {
	c, err := s.courses.CourseBySlug(ctx, slug)
	if err != nil {
		return domain.Course{}, err
	}
	return s.visible(actor, c)
}

func (s *CourseService) ListCourses(ctx context.Context, actor Actor, f domain.CourseFilter) ([]domain.Course, domain.Meta, error) {
	if !actor.IsStaff() {
		f.AllStatuses = false
	}
	f.Page = f.Page.Normalize()
	courses, total, err := s.courses.ListCourses(ctx, f)
	if err != nil {
		return nil, domain.Meta{}, errors.Wrap(err, "list courses")
	}
	return courses, domain.BuildMeta(f.Page, total), nil
}

func (s *CourseService) AddLesson(ctx context.Context, actor Actor, courseID int64, in LessonInput) (domain.Lesson, error) {
	c, err := s.managedCourse(ctx, actor, courseID)
	if err != nil {
		return domain.Lesson{}, err
	}
	now := s.now()
	l := domain.Lesson{CourseID: courseID, CreatedAt: now}
	if err := applyLessonInput(&l, c.Lessons, in, now); err != nil {
		return domain.Lesson{}, err
	}
	if err := s.courses.CreateLesson(ctx, &l); err != nil {
		return domain.Lesson{}, errors.Wrap(err, "create lesson")
	}
	return l, nil
}

func (s *CourseService) UpdateLesson(ctx context.Context, actor Actor, lessonID int64, in LessonInput) (domain.Lesson, error) {
	l, err := s.courses.LessonByID(ctx, lessonID)
	if err != nil {
		return domain.Lesson{}, err
	}
	c, err := s.managedCourse(ctx, actor, l.CourseID)
	if err != nil {
		return domain.Lesson{}, err
	}
	if in.Order == 0 {
		in.Order = l.Order
	}
	if err := applyLessonInput(&l, c.Lessons, in, s.now()); err != nil {
		return domain.Lesson{}, err
	}
	if err := s.courses.UpdateLesson(ctx, &l); err != nil {
		return domain.Lesson{}, errors.Wrap(err, "update lesson")
	}
	return l, nil
}

func (s *CourseService) DeleteLesson(ctx context.Context, actor Actor, lessonID int64) error {
	l, err := s.courses.LessonByID(ctx, lessonID)
	if err != nil {
		return err
	}
	if _, err := s.managedCourse(ctx, actor, l.CourseID); err != nil {
		return err
	}
	return errors.Wrap(s.courses.DeleteLesson(ctx, lessonID), "delete lesson")
}

// Enroll signs the caller up. Paid courses need a completed purchase first.
func (s *CourseService) Enroll(ctx context.Context, actor Actor, courseID int64) (domain.Enrollment, error) {
	c, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	if !c.Published() {
		return domain.Enrollment{}, domain.ErrCourseNotPublished
	}
	if !c.IsFree && c.Price.IsPositive() {
		paid, err := s.payments.HasCompletedPurchase(ctx, actor.UserID, courseID)
		if err != nil {
			return domain.Enrollment{}, errors.Wrap(err, "check purchase")
		}
		if !paid {
			return domain.Enrollment{}, domain.ErrPaymentRequired
		}
	}
	return s.enroll(ctx, actor.UserID, c, false)
}

// EnrollPurchased enrolls a user after a completed course purchase. It is idempotent.
func (s *CourseService) EnrollPurchased(ctx context.Context, userID, courseID int64) (domain.Enrollment, error) {
	c, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	return s.enroll(ctx, userID, c, true)
}

// Drop unenrolls the caller.
func (s *CourseService) Drop(ctx context.Context, actor Actor, courseID int64) (domain.Enrollment, error) {
	e, err := s.courses.EnrollmentFor(ctx, actor.UserID, courseID)
	if err != nil {
		return domain.Enrollment{}, err
	}
	e.Status = domain.EnrollmentDropped
	if err := s.courses.UpdateEnrollment(ctx, &e); err != nil {
		return domain.Enrollment{}, errors.Wrap(err, "update enrollment")
	}
	return e, nil
}

func (s *CourseService) MyEnrollments(ctx context.Context, actor Actor) ([]domain.Enrollment, error) {
	list, err := s.courses.ListEnrollments(ctx, actor.UserID)
	return list, errors.Wrap(err, "list enrollments")
}

// StartLesson records that the caller opened a lesson.
func (s *CourseService) StartLesson(ctx context.Context, actor Actor, lessonID int64) (domain.CourseProgress, error) {
	return s.trackLesson(ctx, actor, lessonID, false)
}

// CompleteLesson marks a lesson done and recomputes course progress; repeating it changes nothing.
func (s *CourseService) CompleteLesson(ctx context.Context, actor Actor, lessonID int64) (domain.CourseProgress, error) {
	return s.trackLesson(ctx, actor, lessonID, true)
}

// Progress returns the caller's progress through a course.
func (s *CourseService) Progress(ctx context.Context, actor Actor, courseID int64) (domain.CourseProgress, error) {
	e, err := s.courses.EnrollmentFor(ctx, actor.UserID, courseID)
	if err != nil {
		return domain.CourseProgress{}, err
	}
	c, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return domain.CourseProgress{}, err
	}
	lessons, err := s.courses.LessonProgressFor(ctx, e.ID)
	if err != nil {
		return domain.CourseProgress{}, errors.Wrap(err, "load lesson progress")
	}
	return courseProgress(e, c, lessons), nil
}

// Rate stores the caller's rating; enrolled users only, one rating each.
func (s *CourseService) Rate(ctx context.Context, actor Actor, courseID int64, in RatingInput) (domain.CourseRating, error) {
	if _, err := s.courses.EnrollmentFor(ctx, actor.UserID, courseID); err != nil {
		if errors.Is(err, domain.ErrEnrollmentNotFound) {
			return domain.CourseRating{}, domain.ErrForbidden
		}
		return domain.CourseRating{}, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return domain.CourseRating{}, domain.FieldValidationError("rating", "rating must be between 1 and 5")
	}
	now := s.now()
	r := domain.CourseRating{
		UserID:    actor.UserID,
		CourseID:  courseID,
		Rating:    in.Rating,
		Review:    strings.TrimSpace(in.Review),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.courses.UpsertRating(ctx, &r); err != nil {
		return domain.CourseRating{}, errors.Wrap(err, "save rating")
	}
	return r, nil
}

func (s *CourseService) Ratings(ctx context.Context, courseID int64) ([]domain.CourseRating, error) {
	if _, err := s.courses.CourseByID(ctx, courseID); err != nil {
		return nil, err
	}
	list, err := s.courses.ListRatings(ctx, courseID)
	return list, errors.Wrap(err, "list ratings")
}

func (s *CourseService) enroll(ctx context.Context, userID int64, c domain.Course, purchased bool) (domain.Enrollment, error) {
	e := domain.Enrollment{
		UserID:     userID,
		CourseID:   c.ID,
		Status:     domain.EnrollmentActive,
		EnrolledAt: s.now(),
	}
	limit := c.MaxEnrollments
	if purchased {
		// a paid seat is honoured even when the course filled up meanwhile
		limit = 0
	}
	err := s.courses.CreateEnrollment(ctx, &e, limit)
	if errors.Is(err, domain.ErrAlreadyEnrolled) {
		existing, ferr := s.courses.EnrollmentFor(ctx, userID, c.ID)
		if ferr != nil {
			return domain.Enrollment{}, ferr
		}
		if existing.Status == domain.EnrollmentDropped {
			existing.Status = domain.EnrollmentActive
			return existing, errors.Wrap(s.courses.UpdateEnrollment(ctx, &existing), "reactivate enrollment")
		}
		if purchased {
			return existing, nil
		}
		return domain.Enrollment{}, domain.ErrAlreadyEnrolled
	}
	if err != nil {
		if errors.Is(err, domain.ErrCourseFull) {
			return domain.Enrollment{}, err
		}
		return domain.Enrollment{}, errors.Wrap(err, "create enrollment")
	}
	return e, nil
}

func (s *CourseService) trackLesson(ctx context.Context, actor Actor, lessonID int64, complete bool) (domain.CourseProgress, error) {
	l, err := s.courses.LessonByID(ctx, lessonID)
	if err != nil {
		return domain.CourseProgress{}, err
	}
	e, err := s.courses.EnrollmentFor(ctx, actor.UserID, l.CourseID)
	if err != nil {
		return domain.CourseProgress{}, err
	}
	if e.Status == domain.EnrollmentDropped {
		return domain.CourseProgress{}, domain.ErrEnrollmentNotFound
	}
	c, err := s.courses.CourseByID(ctx, l.CourseID)
	if err != nil {
		return domain.CourseProgress{}, err
	}
	progress, err := s.courses.LessonProgressFor(ctx, e.ID)
	if err != nil {
		return domain.CourseProgress{}, errors.Wrap(err, "load lesson progress")
	}

	now := s.now()
	var lp *domain.LessonProgress
	for i := range progress {
		if progress[i].LessonID == lessonID {
			lp = &progress[i]
			break
		}
	}
	if lp == nil {
		progress = append(progress, domain.LessonProgress{EnrollmentID: e.ID, LessonID: lessonID, StartedAt: now})
		lp = &progress[len(progress)-1]
	}
	changed := lp.ID == 0
	if complete && lp.CompletedAt == nil {
		lp.CompletedAt = ptrTime(now)
		changed = true
	}
	if changed {
		if err := s.courses.SaveLessonProgress(ctx, lp); err != nil {
			return domain.CourseProgress{}, errors.Wrap(err, "save lesson progress")
		}
	}

	view := courseProgress(e, c, progress)
	if view.Enrollment.ProgressPercent != e.ProgressPercent || view.Enrollment.Status != e.Status {
		e = view.Enrollment
		if err := s.courses.UpdateEnrollment(ctx, &e); err != nil {
			return domain.CourseProgress{}, errors.Wrap(err, "update enrollment")
		}
		if e.Status == domain.EnrollmentCompleted {
			task := domain.Task{Kind: domain.TaskCourseCompleted, CourseID: c.ID, UserID: actor.UserID}
			if err := s.queue.Enqueue(ctx, task); err != nil {
				s.log.Error("enqueue course completion", "course", c.ID, "user", actor.UserID, "err", err)
			}
		}
	}
	return view, nil
}

// courseProgress derives the progress view; reaching 100% completes the enrollment.
func courseProgress(e domain.Enrollment, c domain.Course, progress []domain.LessonProgress) domain.CourseProgress {
	inCourse := make(map[int64]bool, len(c.Lessons))
	for _, l := range c.Lessons {
		inCourse[l.ID] = true
	}
	done := 0
	for _, p := range progress {
		if p.CompletedAt != nil && inCourse[p.LessonID] {
			done++
		}
	}
	total := len(c.Lessons)
	if total > 0 {
		e.ProgressPercent = round2(float64(done) / float64(total) * 100)
	}
	if total > 0 && done == total && e.Status == domain.EnrollmentActive {
		e.Status = domain.EnrollmentCompleted
		var last time.Time
		for _, p := range progress {
			if p.CompletedAt != nil && p.CompletedAt.After(last) {
				last = *p.CompletedAt
			}
		}
		e.CompletedAt = &last
	}
	if progress == nil {
		progress = []domain.LessonProgress{}
	}
	return domain.CourseProgress{Enrollment: e, TotalLessons: total, CompletedLessons: done, Lessons: progress}
}

func (s *CourseService) managedCourse(ctx context.Context, actor Actor, id int64) (domain.Course, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Course{}, err
	}
	c, err := s.courses.CourseByID(ctx, id)
	if err != nil {
		return domain.Course{}, err
	}
	if !actor.CanManage(c.InstructorID) {
		return domain.Course{}, domain.ErrForbidden
	}
	return c, nil
}

func (s *CourseService) visible(actor Actor, c domain.Course) (domain.Course, error) {
	if !c.Published() && !actor.CanManage(c.InstructorID) {
		return domain.Course{}, domain.ErrCourseNotFound
	}
	return c, nil
}

func (s *CourseService) applyCourseInput(ctx context.Context, c *domain.Course, in CourseInput, now time.Time) error {
	var fields domain.Fields
	if in.Price.IsNegative() {
		fields.Add("price", "price cannot be negative")
	}
	slug := in.Slug
	if slug == "" {
		slug = Slugify(in.Title)
	}
	taken, err := s.courses.SlugTaken(ctx, slug, c.ID)
	if err != nil {
		return errors.Wrap(err, "check slug")
	}
	if taken {
		fields.Add("slug", "a course with this slug already exists")
	}
	if err := fields.Err(); err != nil {
		return err
	}

	c.Title = strings.TrimSpace(in.Title)
	c.Slug = slug
	c.Description = strings.TrimSpace(in.Description)
	c.Level = in.Level
	if c.Level == "" {
		c.Level = domain.LevelBeginner
	}
	if in.Status != "" {
		c.Status = in.Status
	}
	if c.Status == domain.CoursePublished && c.PublishedAt == nil {
		c.PublishedAt = ptrTime(now)
	}
	c.Price = in.Price.Round(2)
	c.IsFree = in.IsFree || in.Price.IsZero()
	c.MaxEnrollments = in.MaxEnrollments
	c.UpdatedAt = now
	return nil
}

func applyLessonInput(l *domain.Lesson, siblings []domain.Lesson, in LessonInput, now time.Time) error {
	order := in.Order
	if order == 0 {
		for _, sib := range siblings {
			if sib.Order > order {
				order = sib.Order
			}
		}
		order++
	}
	for _, sib := range siblings {
		if sib.ID != l.ID && sib.Order == order {
			return domain.FieldValidationError("order", "another lesson already uses this order")
		}
	}
	if in.Type == domain.LessonQuiz && in.QuizID == nil {
		return domain.FieldValidationError("quiz_id", "quiz lessons need a quiz")
	}

	l.Title = strings.TrimSpace(in.Title)
	l.Slug = Slugify(l.Title)
	l.Content = in.Content
	l.Type = in.Type
	if l.Type == "" {
		l.Type = domain.LessonText
	}
	l.QuizID = in.QuizID
	l.DurationMinutes = in.DurationMinutes
	l.Order = order
	l.UpdatedAt = now
	return nil
}
