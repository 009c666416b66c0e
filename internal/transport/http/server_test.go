package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"quiz-platform/internal/app"
	"quiz-platform/internal/auth"
	"quiz-platform/internal/domain"
	"quiz-platform/internal/infra/mail"
	"quiz-platform/internal/infra/memory"
	"quiz-platform/internal/logging"
)

type fakeGateway struct{}

func (fakeGateway) CreateCharge(_ context.Context, p domain.Payment, _ domain.User) (domain.Charge, error) {
	return domain.Charge{Token: "tok-" + p.OrderID, RedirectURL: "https://pay.example/" + p.OrderID}, nil
}

func (fakeGateway) Status(context.Context, string) (domain.GatewayStatus, error) {
	return domain.GatewayStatus{TransactionStatus: "pending"}, nil
}

func (fakeGateway) Refund(context.Context, domain.Payment, string) error { return nil }

func (fakeGateway) VerifySignature(n domain.GatewayNotification) bool {
	return n.SignatureKey == "valid"
}

type testEnv struct {
	t        *testing.T
	store    *memory.Store
	tokens   *auth.Manager
	services Services
	srv      Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	log := logging.NewWithWriter(io.Discard, "test", false)
	tokens, err := auth.NewManager(auth.Config{Secret: "test-secret", Issuer: "quiz-platform"})
	require.NoError(t, err)
	notifier, err := mail.NewNotifier(mail.NewConsoleSender(nil), mail.Config{AppName: "Quiz", FrontendBaseURL: "http://localhost"})
	require.NoError(t, err)

	quizzes := memory.NewQuizRepository(store, time.Minute)
	queue := memory.NewTaskQueue(64)
	attempts := app.NewAttemptService(store, quizzes, app.NewSelector("selection-secret", 5), queue, app.DefaultSubmitGrace, log)
	courses := app.NewCourseService(store, store, queue, log)

	services := Services{
		Identity:    app.NewIdentityService(store, tokens, notifier, app.IdentityConfig{BcryptCost: bcrypt.MinCost}, log),
		Catalog:     app.NewCatalogService(store, quizzes),
		Attempts:    attempts,
		Leaderboard: app.NewLeaderboardService(store, store, quizzes, memory.NewLeaderboard(), memory.NewFeedStore()),
		Certificates: app.NewCertificateService(app.CertificateDeps{
			Certificates: store,
			Attempts:     store,
			Users:        store,
			Quizzes:      quizzes,
			Courses:      store,
			Mail:         notifier,
			Log:          log,
		}),
		Analytics:  app.NewAnalyticsService(store.Analytics(), quizzes, store),
		Courses:    courses,
		Payments:   app.NewPaymentService(store, store, store, courses, fakeGateway{}, app.PaymentConfig{Currency: "IDR"}, log),
		Proctoring: app.NewProctoringService(store, quizzes, store, attempts, log),
	}

	return &testEnv{
		t:        t,
		store:    store,
		tokens:   tokens,
		services: services,
		srv: NewServer(&Options{
			DisableReqLogs: true,
			Tokens:         tokens,
			Services:       services,
			Log:            log,
		}),
	}
}

// user stores an active account and returns it with an access token.
func (e *testEnv) user(name string, role domain.Role) (domain.User, string) {
	e.t.Helper()
	u := domain.User{
		Email:     name + "@example.com",
		Username:  name,
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(e.t, u.SetPassword("password123", bcrypt.MinCost))
	require.NoError(e.t, e.store.CreateUser(context.Background(), &u))
	pair, err := e.tokens.Issue(u)
	require.NoError(e.t, err)
	return u, pair.AccessToken
}

// publishedQuiz creates a published quiz with one single-select question.
func (e *testEnv) publishedQuiz(owner domain.User) domain.Quiz {
	e.t.Helper()
	ctx := context.Background()
	actor := app.Actor{UserID: owner.ID, Role: owner.Role}

	quiz, err := e.services.Catalog.CreateQuiz(ctx, actor, app.QuizInput{Title: "Arithmetic " + strconv.FormatInt(owner.ID, 10)})
	require.NoError(e.t, err)
	_, err = e.services.Catalog.AddQuestion(ctx, actor, quiz.ID, app.QuestionInput{
		Type: domain.QuestionSingleSelect,
		Text: "2 + 2?",
		Options: []app.OptionInput{
			{Text: "3"},
			{Text: "4", IsCorrect: true},
		},
	})
	require.NoError(e.t, err)
	quiz, err = e.services.Catalog.SetPublished(ctx, actor, quiz.ID, true)
	require.NoError(e.t, err)
	return quiz
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(e.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestValidationErrorsAreKeyedByField(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var fields map[string]string
	decode(t, rec, &fields)
	assert.Contains(t, fields, "email")
	assert.Equal(t, "this field is required", fields["username"])
	assert.Equal(t, "this field is required", fields["password"])
}

func TestMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/auth/login", "", `{"login":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "Ada@Example.com",
		"username": "ada",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "ada@example.com",
		"username": "ada",
		"password": "correct-horse",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"login": "ada", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"login": "ada@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		User        domain.User `json:"user"`
		AccessToken string      `json:"access_token"`
	}
	decode(t, rec, &login)
	assert.Equal(t, "ada@example.com", login.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodGet, "/api/v1/users/me", login.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"user not authenticated"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/v1/users/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaffRoutesRejectStudents(t *testing.T) {
	env := newTestEnv(t)
	_, student := env.user("student", domain.RoleStudent)
	_, mentor := env.user("mentor", domain.RoleInstructor)

	body := map[string]interface{}{"title": "Go basics", "difficulty": "easy"}
	rec := env.do(http.MethodPost, "/api/v1/quizzes", student, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/v1/quizzes", mentor, body)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/v1/users", mentor, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestQuestionsHideCorrectness(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	_, student := env.user("student", domain.RoleStudent)
	quiz := env.publishedQuiz(owner)

	rec := env.do(http.MethodGet, "/api/v1/quizzes/"+strconv.FormatInt(quiz.ID, 10)+"/questions", student, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "is_correct")

	var sheet app.QuestionSheet
	decode(t, rec, &sheet)
	assert.Len(t, sheet.Questions, 1)
	assert.Nil(t, sheet.Attempt)
}

func TestSubmitTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	_, student := env.user("student", domain.RoleStudent)
	quiz := env.publishedQuiz(owner)

	rec := env.do(http.MethodPost, "/api/v1/quizzes/"+strconv.FormatInt(quiz.ID, 10)+"/attempts", student, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sheet app.QuestionSheet
	decode(t, rec, &sheet)
	require.NotNil(t, sheet.Attempt)
	require.Len(t, sheet.Questions, 1)

	q := sheet.Questions[0]
	var correct int64
	for _, o := range q.Options {
		if o.Text == "4" {
			correct = o.ID
		}
	}
	submit := map[string]interface{}{
		"answers": []map[string]interface{}{{"question_id": q.ID, "option_ids": []int64{correct}}},
	}
	path := "/api/v1/attempts/" + strconv.FormatInt(sheet.Attempt.ID, 10) + "/submit"

	rec = env.do(http.MethodPost, path, student, submit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var attempt domain.Attempt
	decode(t, rec, &attempt)
	assert.Equal(t, domain.AttemptCompleted, attempt.Status)
	assert.Equal(t, 100.0, attempt.PercentageScore)
	assert.True(t, attempt.Passed)

	rec = env.do(http.MethodPost, path, student, submit)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"attempt already submitted"}`, rec.Body.String())
}

func TestSubmitRejectsUnselectedQuestion(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	_, student := env.user("student", domain.RoleStudent)
	quiz := env.publishedQuiz(owner)

	submit := map[string]interface{}{
		"answers": []map[string]interface{}{{"question_id": 999999, "text": "4"}},
	}
	rec := env.do(http.MethodPost, "/api/v1/quizzes/"+strconv.FormatInt(quiz.ID, 10)+"/submit", student, submit)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestUnknownQuizIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, student := env.user("student", domain.RoleStudent)

	rec := env.do(http.MethodGet, "/api/v1/quizzes/424242", student, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/quizzes/abc", student, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	buyer, token := env.user("buyer", domain.RoleStudent)

	p := domain.Payment{
		OrderID:   "order-1",
		UserID:    buyer.ID,
		Type:      domain.PaymentDonation,
		Currency:  "IDR",
		Status:    domain.PaymentPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, env.store.CreatePayment(context.Background(), &p))

	notification := map[string]string{
		"order_id":           "order-1",
		"status_code":        "200",
		"gross_amount":       "10000.00",
		"signature_key":      "forged",
		"transaction_status": "settlement",
	}
	rec := env.do(http.MethodPost, "/api/v1/payments/notifications", "", notification)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/payments/"+strconv.FormatInt(p.ID, 10), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored domain.Payment
	decode(t, rec, &stored)
	assert.Equal(t, domain.PaymentPending, stored.Status)

	notification["signature_key"] = "valid"
	rec = env.do(http.MethodPost, "/api/v1/payments/notifications", "", notification)
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.store.PaymentByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCompleted, stored.Status)
}

func TestWebhookIgnoresUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/payments/notifications", "", map[string]string{
		"order_id":           "missing",
		"signature_key":      "valid",
		"transaction_status": "settlement",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecondProctoringSessionConflicts(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.user("owner", domain.RoleInstructor)
	_, student := env.user("student", domain.RoleStudent)
	quiz := env.publishedQuiz(owner)

	body := map[string]interface{}{"quiz_id": quiz.ID}
	rec := env.do(http.MethodPost, "/api/v1/proctoring/sessions", student, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/v1/proctoring/sessions", student, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCertificateVerifyIsPublic(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/certificates/verify/CERT-UNKNOWN", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCourseListingIsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	_, mentor := env.user("mentor", domain.RoleInstructor)

	rec := env.do(http.MethodPost, "/api/v1/courses", mentor, map[string]interface{}{
		"title":   "Intro to Go",
		"status":  "published",
		"is_free": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/v1/courses", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []domain.Course `json:"data"`
		Meta domain.Meta     `json:"meta"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Data, 1)

	rec = env.do(http.MethodPost, "/api/v1/courses/"+strconv.FormatInt(list.Data[0].ID, 10)+"/enroll", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
