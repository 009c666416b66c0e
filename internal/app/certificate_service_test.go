package app_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/logging"
)

type fakeRenderer struct{ calls int }

func (r *fakeRenderer) Render(_ context.Context, c domain.Certificate) ([]byte, error) {
	r.calls++
	return []byte("%PDF " + c.Number), nil
}

type fakeStorage struct{ files map[string][]byte }

func (s *fakeStorage) Upload(_ context.Context, name string, data []byte) (string, error) {
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = data
	return "https://files.example/" + name, nil
}

// passAttempt has actor pass quiz and returns the completed attempt.
func (e *env) passAttempt(actor app.Actor, quiz domain.Quiz, right bool) domain.Attempt {
	e.t.Helper()
	ctx := context.Background()
	sheet, err := e.attempts.Start(ctx, actor, quiz.ID)
	require.NoError(e.t, err)
	a, err := e.attempts.Submit(ctx, actor, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, right)})
	require.NoError(e.t, err)
	return a
}

func TestCompletionIssuesCertificateOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Certified"}, singleSelect("2 + 2?", "4", "3"))

	a := e.passAttempt(student, quiz, true)
	e.drain()

	certs, err := e.certs.Mine(ctx, student)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	c := certs[0]
	assert.Equal(t, domain.CertificateQuiz, c.Kind)
	assert.True(t, strings.HasPrefix(c.Number, "CERT-Q"), c.Number)
	require.NotNil(t, c.AttemptID)
	assert.Equal(t, a.ID, *c.AttemptID)
	assert.Equal(t, "Certified", c.Data.Title)
	assert.Len(t, e.mail.certificates, 1)
	assert.Len(t, e.mail.results, 1)

	// redelivered task and explicit requests reuse the certificate
	require.NoError(t, e.postprocess.Handle(ctx, domain.Task{Kind: domain.TaskAttemptCompleted, AttemptID: a.ID}))
	again, err := e.certs.RequestForQuiz(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Number, again.Number)

	certs, err = e.certs.Mine(ctx, student)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
	assert.Len(t, e.mail.certificates, 1)

	verified, err := e.certs.Verify(ctx, strings.ToLower(c.Number))
	require.NoError(t, err)
	assert.Equal(t, c.UUID, verified.UUID)
}

func TestRequestForQuizNeedsPass(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Failed"}, singleSelect("2 + 2?", "4", "3"))

	e.passAttempt(student, quiz, false)
	e.drain()

	_, err := e.certs.RequestForQuiz(ctx, student, quiz.ID)
	assert.True(t, errors.Is(err, domain.ErrNotPassed), "got %v", err)
	certs, err := e.certs.Mine(ctx, student)
	require.NoError(t, err)
	assert.Empty(t, certs)
}

func TestCertificateIsRenderedAndUploaded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	_, other := e.user("other", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Printed"}, singleSelect("2 + 2?", "4", "3"))
	a := e.passAttempt(student, quiz, true)

	renderer := &fakeRenderer{}
	storage := &fakeStorage{}
	certs := app.NewCertificateService(app.CertificateDeps{
		Certificates: e.store,
		Attempts:     e.store,
		Users:        e.store,
		Quizzes:      e.quizzes,
		Courses:      e.store,
		Renderer:     renderer,
		Storage:      storage,
		Mail:         e.mail,
		Log:          logging.NewWithWriter(io.Discard, "test", false),
	})

	c, created, err := certs.IssueForAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "https://files.example/"+c.Number+".pdf", c.FileURL)
	assert.Contains(t, storage.files, c.Number+".pdf")

	_, created, err = certs.IssueForAttempt(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, renderer.calls)

	got, err := certs.Get(ctx, student, c.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, c.FileURL, got.FileURL)

	_, err = certs.Get(ctx, other, c.UUID.String())
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
	_, err = certs.Get(ctx, student, "not-a-uuid")
	assert.True(t, errors.Is(err, domain.ErrCertificateNotFound), "got %v", err)
}
