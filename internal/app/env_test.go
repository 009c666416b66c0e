package app_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"quiz-platform/internal/app"
	"quiz-platform/internal/auth"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/memory"
	"quiz-platform/internal/logging"
)

// recordingMail keeps the secrets and messages the services would have emailed.
type recordingMail struct {
	mu           sync.Mutex
	verification []string
	reset        []string
	results      []int64
	certificates []string
}

func (m *recordingMail) VerificationEmail(_ context.Context, _ domain.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification = append(m.verification, token)
	return nil
}

func (m *recordingMail) PasswordResetEmail(_ context.Context, _ domain.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset = append(m.reset, token)
	return nil
}

func (m *recordingMail) QuizResultEmail(_ context.Context, _ domain.User, _ domain.Quiz, a domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, a.ID)
	return nil
}

func (m *recordingMail) CertificateEmail(_ context.Context, _ domain.User, c domain.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certificates = append(m.certificates, c.Number)
	return nil
}

type env struct {
	t       *testing.T
	store   *memory.Store
	quizzes *memory.QuizRepository
	queue   *memory.TaskQueue
	mail    *recordingMail
	tokens  *auth.Manager

	identity    *app.IdentityService
	catalog     *app.CatalogService
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
	certs       *app.CertificateService
	analytics   *app.AnalyticsService
	courses     *app.CourseService
	proctoring  *app.ProctoringService
	postprocess *app.PostProcessor
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.NewStore()
	log := logging.NewWithWriter(io.Discard, "test", false)
	tokens, err := auth.NewManager(auth.Config{Secret: "test-secret", Issuer: "quiz-platform"})
	require.NoError(t, err)

	e := &env{
		t:       t,
		store:   store,
		quizzes: memory.NewQuizRepository(store, time.Minute),
		queue:   memory.NewTaskQueue(64),
		mail:    &recordingMail{},
		tokens:  tokens,
	}
	e.identity = app.NewIdentityService(store, tokens, e.mail, app.IdentityConfig{BcryptCost: bcrypt.MinCost}, log)
	e.catalog = app.NewCatalogService(store, e.quizzes)
	e.attempts = app.NewAttemptService(store, e.quizzes, app.NewSelector("selection-secret", 5), e.queue, app.DefaultSubmitGrace, log)
	e.leaderboard = app.NewLeaderboardService(store, store, e.quizzes, memory.NewLeaderboard(), memory.NewFeedStore())
	e.certs = app.NewCertificateService(app.CertificateDeps{
		Certificates: store,
		Attempts:     store,
		Users:        store,
		Quizzes:      e.quizzes,
		Courses:      store,
		Mail:         e.mail,
		Log:          log,
	})
	e.analytics = app.NewAnalyticsService(store.Analytics(), e.quizzes, store)
	e.courses = app.NewCourseService(store, store, e.queue, log)
	e.proctoring = app.NewProctoringService(store, e.quizzes, store, e.attempts, log)
	e.postprocess = app.NewPostProcessor(store, store, e.quizzes, e.leaderboard, e.analytics, e.certs, e.mail, log)
	return e
}

func (e *env) user(name string, role domain.Role) (domain.User, app.Actor) {
	e.t.Helper()
	now := time.Now()
	u := domain.User{
		Email:     name + "@example.com",
		Username:  name,
		FirstName: name,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(e.t, u.SetPassword("password123", bcrypt.MinCost))
	require.NoError(e.t, e.store.CreateUser(context.Background(), &u))
	return u, app.Actor{UserID: u.ID, Role: u.Role}
}

func singleSelect(text, correct string, wrong ...string) app.QuestionInput {
	in := app.QuestionInput{Type: domain.QuestionSingleSelect, Text: text}
	for _, w := range wrong {
		in.Options = append(in.Options, app.OptionInput{Text: w})
	}
	in.Options = append(in.Options, app.OptionInput{Text: correct, IsCorrect: true})
	return in
}

// publish creates a published quiz owned by owner.
func (e *env) publish(owner app.Actor, in app.QuizInput, questions ...app.QuestionInput) domain.Quiz {
	e.t.Helper()
	ctx := context.Background()
	if in.Title == "" {
		in.Title = "Quiz " + time.Now().Format(time.RFC3339Nano)
	}
	quiz, err := e.catalog.CreateQuiz(ctx, owner, in)
	require.NoError(e.t, err)
	for _, q := range questions {
		_, err := e.catalog.AddQuestion(ctx, owner, quiz.ID, q)
		require.NoError(e.t, err)
	}
	_, err = e.catalog.SetPublished(ctx, owner, quiz.ID, true)
	require.NoError(e.t, err)

	full, err := e.quizzes.GetQuiz(ctx, quiz.ID)
	require.NoError(e.t, err)
	return full
}

// answers builds a submission for sheet. Selectable questions get their correct
// options when right is true and a wrong option otherwise.
func answers(quiz domain.Quiz, sheet app.QuestionSheet, right bool) []domain.AnswerSubmission {
	var out []domain.AnswerSubmission
	for _, pq := range sheet.Questions {
		q, ok := quiz.Question(pq.ID)
		if !ok {
			continue
		}
		sub := domain.AnswerSubmission{QuestionID: q.ID}
		for _, o := range q.Options {
			if o.IsCorrect == right {
				sub.OptionIDs = append(sub.OptionIDs, o.ID)
				if q.Type == domain.QuestionSingleSelect {
					break
				}
			}
		}
		if len(sub.OptionIDs) == 0 {
			sub.Text = "an essay answer"
		}
		out = append(out, sub)
	}
	return out
}

// drain handles every queued task the way the worker does.
func (e *env) drain() {
	e.t.Helper()
	ctx := context.Background()
	for e.queue.Len() > 0 {
		d, ok, err := e.queue.Dequeue(ctx, time.Second)
		require.NoError(e.t, err)
		require.True(e.t, ok)
		require.NoError(e.t, e.postprocess.Handle(ctx, d.Task))
	}
}
