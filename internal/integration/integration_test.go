package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/mail"
	"quiz-platform/internal/infra/postgres"
	pgmigrations "quiz-platform/internal/infra/postgres/migrations"
	infraredis "quiz-platform/internal/infra/redis"
	"quiz-platform/internal/logging"
)

type stack struct {
	store       *postgres.Store
	queue       *infraredis.TaskQueue
	catalog     *app.CatalogService
	attempts    *app.AttemptService
	leaderboard *app.LeaderboardService
	certs       *app.CertificateService
	analytics   *app.AnalyticsService
	proctoring  *app.ProctoringService
	postprocess *app.PostProcessor
}

func TestAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	s := newStack(t, ctx, pgURL, redisURL)

	instructor := createUser(t, ctx, s.store, "mentor", domain.RoleInstructor)
	student := createUser(t, ctx, s.store, "learner", domain.RoleStudent)
	owner := app.Actor{UserID: instructor.ID, Role: instructor.Role}
	actor := app.Actor{UserID: student.ID, Role: student.Role}

	quiz, err := s.catalog.CreateQuiz(ctx, owner, app.QuizInput{
		Title:      "Go basics",
		Difficulty: domain.DifficultyEasy,
		Tags:       []string{"go", "basics"},
	})
	require.NoError(t, err)
	for _, q := range []struct{ text, correct, wrong string }{
		{"Zero value of int?", "0", "nil"},
		{"Keyword for goroutines?", "go", "async"},
	} {
		_, err := s.catalog.AddQuestion(ctx, owner, quiz.ID, app.QuestionInput{
			Type:    domain.QuestionSingleSelect,
			Text:    q.text,
			Points:  1,
			Options: []app.OptionInput{{Text: q.wrong}, {Text: q.correct, IsCorrect: true}},
		})
		require.NoError(t, err)
	}
	_, err = s.catalog.SetPublished(ctx, owner, quiz.ID, true)
	require.NoError(t, err)

	sheet, err := s.attempts.Start(ctx, actor, quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, sheet.Attempt)
	require.Len(t, sheet.Questions, 2)

	resumed, err := s.attempts.Start(ctx, actor, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, sheet.Attempt.ID, resumed.Attempt.ID, "second start resumes the open attempt")

	// the partial unique index rejects a second open attempt
	dup := domain.Attempt{UserID: student.ID, QuizID: quiz.ID, Status: domain.AttemptInProgress, IsValid: true, StartedAt: time.Now()}
	err = s.store.CreateAttempt(ctx, &dup)
	assert.True(t, errors.Is(err, domain.ErrAttemptInProgress), "got %v", err)

	correct := map[string]string{"Zero value of int?": "0", "Keyword for goroutines?": "go"}
	var answers []domain.AnswerSubmission
	for _, q := range sheet.Questions {
		for _, o := range q.Options {
			if o.Text == correct[q.Text] {
				answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, OptionIDs: []int64{o.ID}})
			}
		}
	}
	require.Len(t, answers, 2)

	done, err := s.attempts.Submit(ctx, actor, sheet.Attempt.ID, app.SubmitInput{Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, done.Status)
	assert.InDelta(t, 100, done.PercentageScore, 0.001)
	assert.True(t, done.Passed)

	_, err = s.attempts.Submit(ctx, actor, sheet.Attempt.ID, app.SubmitInput{Answers: answers})
	assert.True(t, errors.Is(err, domain.ErrAttemptSubmitted), "got %v", err)

	// drain the completion task through the redis queue like the worker does
	d, ok, err := s.queue.Dequeue(ctx, 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "completion task enqueued")
	assert.Equal(t, domain.TaskAttemptCompleted, d.Task.Kind)
	require.NoError(t, s.postprocess.Handle(ctx, d.Task))
	require.NoError(t, s.queue.Ack(ctx, d))

	board, err := s.leaderboard.Top(ctx, quiz.ID, 10)
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, student.ID, board.Entries[0].UserID)
	assert.Equal(t, 1, board.Entries[0].Rank)

	certs, err := s.certs.Mine(ctx, actor)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	verified, err := s.certs.Verify(ctx, certs[0].Number)
	require.NoError(t, err)
	assert.Equal(t, certs[0].UUID, verified.UUID)

	// a retried task must not duplicate the certificate
	require.NoError(t, s.postprocess.Handle(ctx, d.Task))
	certs, err = s.certs.Mine(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, certs, 1)

	stats, err := s.analytics.UserStats(ctx, actor, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAttempts)
	assert.Equal(t, 1, stats.PassedAttempts)
	assert.InDelta(t, 100, stats.BestScore, 0.001)
}

func TestProctoringSessionIsExclusive(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	s := newStack(t, ctx, pgURL, redisURL)

	instructor := createUser(t, ctx, s.store, "proctor", domain.RoleInstructor)
	student := createUser(t, ctx, s.store, "examinee", domain.RoleStudent)
	owner := app.Actor{UserID: instructor.ID, Role: instructor.Role}
	actor := app.Actor{UserID: student.ID, Role: student.Role}

	quiz, err := s.catalog.CreateQuiz(ctx, owner, app.QuizInput{Title: "Proctored", ProctoringRequired: true})
	require.NoError(t, err)
	_, err = s.catalog.AddQuestion(ctx, owner, quiz.ID, app.QuestionInput{
		Type:    domain.QuestionSingleSelect,
		Text:    "1 + 1?",
		Options: []app.OptionInput{{Text: "2", IsCorrect: true}, {Text: "3"}},
	})
	require.NoError(t, err)
	_, err = s.catalog.SetPublished(ctx, owner, quiz.ID, true)
	require.NoError(t, err)

	session, err := s.proctoring.Start(ctx, actor, app.SessionInput{QuizID: quiz.ID})
	require.NoError(t, err)

	_, err = s.proctoring.Start(ctx, actor, app.SessionInput{QuizID: quiz.ID})
	assert.True(t, errors.Is(err, domain.ErrSessionActive), "got %v", err)

	ended, err := s.proctoring.End(ctx, actor, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, ended.EndedAt)

	_, err = s.proctoring.Start(ctx, actor, app.SessionInput{QuizID: quiz.ID})
	assert.NoError(t, err, "a new session may start after the previous one ended")
}

func TestConcurrentStartsShareOneAttempt(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	s := newStack(t, ctx, pgURL, redisURL)

	instructor := createUser(t, ctx, s.store, "author", domain.RoleInstructor)
	student := createUser(t, ctx, s.store, "racer", domain.RoleStudent)
	owner := app.Actor{UserID: instructor.ID, Role: instructor.Role}
	actor := app.Actor{UserID: student.ID, Role: student.Role}
	quiz := publishQuiz(t, ctx, s, owner, "Race condition")

	const starters = 8
	ids := make([]int64, starters)
	var g errgroup.Group
	for i := 0; i < starters; i++ {
		i := i
		g.Go(func() error {
			sheet, err := s.attempts.Start(ctx, actor, quiz.ID)
			if err != nil {
				return err
			}
			ids[i] = sheet.Attempt.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id, "every caller resumes the same attempt")
	}

	open, total, err := s.store.ListAttempts(ctx, domain.AttemptFilter{UserID: student.ID, QuizID: quiz.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, open, 1)
	assert.Equal(t, domain.AttemptInProgress, open[0].Status)
}

func TestCertificateIssuedOnceOnPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	s := newStack(t, ctx, pgURL, redisURL)

	instructor := createUser(t, ctx, s.store, "issuer", domain.RoleInstructor)
	student := createUser(t, ctx, s.store, "graduate", domain.RoleStudent)
	owner := app.Actor{UserID: instructor.ID, Role: instructor.Role}
	actor := app.Actor{UserID: student.ID, Role: student.Role}
	quiz := publishQuiz(t, ctx, s, owner, "Certified on postgres")

	sheet, err := s.attempts.Start(ctx, actor, quiz.ID)
	require.NoError(t, err)
	var answers []domain.AnswerSubmission
	for _, q := range sheet.Questions {
		for _, o := range q.Options {
			if o.Text == "2" {
				answers = append(answers, domain.AnswerSubmission{QuestionID: q.ID, OptionIDs: []int64{o.ID}})
			}
		}
	}
	done, err := s.attempts.Submit(ctx, actor, sheet.Attempt.ID, app.SubmitInput{Answers: answers})
	require.NoError(t, err)
	require.True(t, done.Passed)

	type issued struct {
		cert    domain.Certificate
		created bool
	}
	results := make([]issued, 4)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			c, created, err := s.certs.IssueForAttempt(ctx, done.ID)
			results[i] = issued{c, created}
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, r := range results {
		assert.Equal(t, results[0].cert.UUID, r.cert.UUID)
		if r.created {
			created++
		}
	}
	assert.Equal(t, 1, created, "exactly one caller inserts")

	again, fresh, err := s.certs.IssueForAttempt(ctx, done.ID)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, results[0].cert.Number, again.Number)

	certs, err := s.certs.Mine(ctx, actor)
	require.NoError(t, err)
	assert.Len(t, certs, 1)
}

// publishQuiz creates a published quiz with one "1 + 1?" question.
func publishQuiz(t *testing.T, ctx context.Context, s *stack, owner app.Actor, title string) domain.Quiz {
	t.Helper()
	quiz, err := s.catalog.CreateQuiz(ctx, owner, app.QuizInput{Title: title})
	require.NoError(t, err)
	_, err = s.catalog.AddQuestion(ctx, owner, quiz.ID, app.QuestionInput{
		Type:    domain.QuestionSingleSelect,
		Text:    "1 + 1?",
		Options: []app.OptionInput{{Text: "2", IsCorrect: true}, {Text: "3"}},
	})
	require.NoError(t, err)
	quiz, err = s.catalog.SetPublished(ctx, owner, quiz.ID, true)
	require.NoError(t, err)
	return quiz
}

func newStack(t *testing.T, ctx context.Context, pgURL, redisURL string) *stack {
	t.Helper()

	db := postgres.Open(pgURL)
	t.Cleanup(func() { _ = db.Close() })
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx), "migrator init")
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err, "migrate")

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err, "connect pg")
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err, "redis client")
	t.Cleanup(func() { _ = redisClient.Close() })

	log := logging.NewWithWriter(io.Discard, "integration", false)
	notifier, err := mail.NewNotifier(mail.NewConsoleSender(nil), mail.Config{AppName: "Quiz", FrontendBaseURL: "http://localhost"})
	require.NoError(t, err)

	store := postgres.NewStore(db)
	quizzes := infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute)
	queue := infraredis.NewTaskQueue(redisClient)

	s := &stack{store: store, queue: queue}
	s.catalog = app.NewCatalogService(store, quizzes)
	s.attempts = app.NewAttemptService(store, quizzes, app.NewSelector("integration-secret", 10), queue, app.DefaultSubmitGrace, log)
	s.leaderboard = app.NewLeaderboardService(store, store, quizzes,
		infraredis.NewLeaderboard(redisClient), infraredis.NewFeedStore(redisClient, 5*time.Minute))
	s.analytics = app.NewAnalyticsService(postgres.NewAnalytics(pool), quizzes, store)
	s.certs = app.NewCertificateService(app.CertificateDeps{
		Certificates: store,
		Attempts:     store,
		Users:        store,
		Quizzes:      quizzes,
		Courses:      store,
		Mail:         notifier,
		Log:          log,
	})
	s.proctoring = app.NewProctoringService(store, quizzes, store, s.attempts, log)
	s.postprocess = app.NewPostProcessor(store, store, quizzes, s.leaderboard, s.analytics, s.certs, notifier, log)
	return s
}

func createUser(t *testing.T, ctx context.Context, store *postgres.Store, name string, role domain.Role) domain.User {
	t.Helper()
	now := time.Now()
	u := domain.User{
		Email:     name + "@example.com",
		Username:  name,
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, u.SetPassword("password123", bcrypt.MinCost))
	require.NoError(t, store.CreateUser(ctx, &u))
	return u
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
