package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func (e *env) course(owner app.Actor, in app.CourseInput, lessons ...string) (domain.Course, []domain.Lesson) {
	e.t.Helper()
	ctx := context.Background()
	if in.Status == "" {
		in.Status = domain.CoursePublished
	}
	c, err := e.courses.CreateCourse(ctx, owner, in)
	require.NoError(e.t, err)
	var out []domain.Lesson
	for _, title := range lessons {
		l, err := e.courses.AddLesson(ctx, owner, c.ID, app.LessonInput{Title: title, Content: "..."})
		require.NoError(e.t, err)
		out = append(out, l)
	}
	return c, out
}

func TestCourseProgressCompletesEnrollment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	c, lessons := e.course(owner, app.CourseInput{Title: "Go From Zero"}, "Intro", "Types")
	assert.Equal(t, "go-from-zero", c.Slug)
	assert.True(t, c.IsFree)
	assert.Equal(t, 1, lessons[0].Order)
	assert.Equal(t, 2, lessons[1].Order)

	enrollment, err := e.courses.Enroll(ctx, student, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentActive, enrollment.Status)

	_, err = e.courses.Enroll(ctx, student, c.ID)
	assert.True(t, errors.Is(err, domain.ErrAlreadyEnrolled), "got %v", err)

	p, err := e.courses.StartLesson(ctx, student, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, p.CompletedLessons)

	p, err = e.courses.CompleteLesson(ctx, student, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedLessons)
	assert.InDelta(t, 50, p.Enrollment.ProgressPercent, 0.001)

	// completing the same lesson again changes nothing
	p, err = e.courses.CompleteLesson(ctx, student, lessons[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.CompletedLessons)
	assert.Equal(t, 0, e.queue.Len())

	p, err = e.courses.CompleteLesson(ctx, student, lessons[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CompletedLessons)
	assert.InDelta(t, 100, p.Enrollment.ProgressPercent, 0.001)
	assert.Equal(t, domain.EnrollmentCompleted, p.Enrollment.Status)
	require.NotNil(t, p.Enrollment.CompletedAt)

	// the completion task issues the course certificate
	require.Equal(t, 1, e.queue.Len())
	e.drain()
	certs, err := e.certs.Mine(ctx, student)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, domain.CertificateCourse, certs[0].Kind)
	assert.Equal(t, "Go From Zero", certs[0].Data.Title)

	stored, err := e.courses.Progress(ctx, student, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentCompleted, stored.Enrollment.Status)
}

func TestCourseCertificateNeedsCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	u, student := e.user("student", domain.RoleStudent)
	c, _ := e.course(owner, app.CourseInput{Title: "Unfinished"}, "Only lesson")

	_, err := e.courses.Enroll(ctx, student, c.ID)
	require.NoError(t, err)

	_, _, err = e.certs.IssueForCourse(ctx, u.ID, c.ID)
	assert.True(t, errors.Is(err, domain.ErrCourseIncomplete), "got %v", err)
	// the worker treats an incomplete course as done
	assert.NoError(t, e.postprocess.Handle(ctx, domain.Task{Kind: domain.TaskCourseCompleted, UserID: u.ID, CourseID: c.ID}))
}

func TestEnrollRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, first := e.user("first", domain.RoleStudent)
	_, second := e.user("second", domain.RoleStudent)

	draft, _ := e.course(owner, app.CourseInput{Title: "Draft", Status: domain.CourseDraft})
	_, err := e.courses.Enroll(ctx, first, draft.ID)
	assert.True(t, errors.Is(err, domain.ErrCourseNotPublished), "got %v", err)
	_, err = e.courses.GetCourse(ctx, first, draft.ID)
	assert.True(t, errors.Is(err, domain.ErrCourseNotFound), "got %v", err)

	paid, _ := e.course(owner, app.CourseInput{Title: "Paid", Price: decimal.NewFromInt(150000)})
	assert.False(t, paid.IsFree)
	_, err = e.courses.Enroll(ctx, first, paid.ID)
	assert.True(t, errors.Is(err, domain.ErrPaymentRequired), "got %v", err)

	small, _ := e.course(owner, app.CourseInput{Title: "Small", MaxEnrollments: 1})
	_, err = e.courses.Enroll(ctx, first, small.ID)
	require.NoError(t, err)
	_, err = e.courses.Enroll(ctx, second, small.ID)
	assert.True(t, errors.Is(err, domain.ErrCourseFull), "got %v", err)

	// dropping and enrolling again reactivates the same enrollment
	dropped, err := e.courses.Drop(ctx, first, small.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EnrollmentDropped, dropped.Status)
	back, err := e.courses.Enroll(ctx, first, small.ID)
	require.NoError(t, err)
	assert.Equal(t, dropped.ID, back.ID)
	assert.Equal(t, domain.EnrollmentActive, back.Status)
}

func TestCourseSlugIsUnique(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	e.course(owner, app.CourseInput{Title: "Same Name"})

	_, err := e.courses.CreateCourse(ctx, owner, app.CourseInput{Title: "Same name!"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "slug", verr.Fields[0].Field)
}

func TestRatingRequiresEnrollment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	c, _ := e.course(owner, app.CourseInput{Title: "Rated"})

	_, err := e.courses.Rate(ctx, student, c.ID, app.RatingInput{Rating: 5})
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)

	_, err = e.courses.Enroll(ctx, student, c.ID)
	require.NoError(t, err)
	_, err = e.courses.Rate(ctx, student, c.ID, app.RatingInput{Rating: 4, Review: " fine "})
	require.NoError(t, err)
	_, err = e.courses.Rate(ctx, student, c.ID, app.RatingInput{Rating: 5})
	require.NoError(t, err)

	ratings, err := e.courses.Ratings(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 1, "one rating per user")
	assert.Equal(t, 5, ratings[0].Rating)
}
