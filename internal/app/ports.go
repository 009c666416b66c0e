package app

import (
	"context"
	"time"

	"quiz-platform/internal/domain"
)

// UserRepository persists accounts and one-time tokens.
type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, u *domain.User) error
	UserByID(ctx context.Context, id int64) (domain.User, error)
	// UserByLogin matches email or username, case-insensitively.
	UserByLogin(ctx context.Context, login string) (domain.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	ListUsers(ctx context.Context, p domain.Page) ([]domain.User, int, error)

	SaveToken(ctx context.Context, t *domain.UserToken) error
	// TokenByHash returns domain.ErrInvalidToken when no token matches.
	TokenByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (domain.UserToken, error)
	MarkTokenUsed(ctx context.Context, id int64, at time.Time) error
}

// CatalogRepository persists quizzes, questions, options and tags.
type CatalogRepository interface {
	CreateQuiz(ctx context.Context, q *domain.Quiz) error
	UpdateQuiz(ctx context.Context, q *domain.Quiz) error
	DeleteQuiz(ctx context.Context, id int64) error
	// QuizByID returns the quiz with tags and questions (ordered by position) and their options.
	QuizByID(ctx context.Context, id int64) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, f domain.QuizFilter) ([]domain.Quiz, int, error)
	TitleTaken(ctx context.Context, title string, exceptID int64) (bool, error)

	CreateQuestion(ctx context.Context, q *domain.Question) error
	// UpdateQuestion rewrites the question and replaces its options.
	UpdateQuestion(ctx context.Context, q *domain.Question) error
	DeleteQuestion(ctx context.Context, id int64) error
	QuestionByID(ctx context.Context, id int64) (domain.Question, error)

	// EnsureTags returns tags for names, creating the missing ones.
	EnsureTags(ctx context.Context, names []string) ([]domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)
}

// QuizSource loads quiz content for the attempt hot path (from cache/backing store).
type QuizSource interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID int64)
}

// AttemptMutation changes a locked attempt and returns the answers to insert or update.
type AttemptMutation func(a *domain.Attempt) ([]domain.Answer, error)

// AttemptRepository persists attempts and their answers.
type AttemptRepository interface {
	// CreateAttempt fails with domain.ErrAttemptInProgress when the user already has an open attempt on the quiz.
	CreateAttempt(ctx context.Context, a *domain.Attempt) error
	InProgressAttempt(ctx context.Context, userID, quizID int64) (domain.Attempt, error)
	CountCompleted(ctx context.Context, userID, quizID int64) (int, error)
	// AttemptByID returns the attempt with its answers.
	AttemptByID(ctx context.Context, id int64) (domain.Attempt, error)
	// UpdateAttempt locks the attempt, loads its answers into a.Answers, applies fn and persists
	// the attempt plus the returned answers (ID 0 inserts) in one transaction.
	UpdateAttempt(ctx context.Context, id int64, fn AttemptMutation) (domain.Attempt, error)
	AnswerByID(ctx context.Context, id int64) (domain.Answer, error)
	ListAttempts(ctx context.Context, f domain.AttemptFilter) ([]domain.Attempt, int, error)
	// PendingAnswers lists answers awaiting manual grading, optionally narrowed to one quiz
	// and to quizzes created by one user (zero means any).
	PendingAnswers(ctx context.Context, quizID, createdBy int64) ([]domain.PendingAnswer, error)
	// CompletedAttempts lists completed attempts of a quiz, valid ones only when onlyValid is set.
	CompletedAttempts(ctx context.Context, quizID int64, onlyValid bool) ([]domain.Attempt, error)
	// QuizzesWithCompletions lists the IDs of quizzes that have at least one completed attempt.
	QuizzesWithCompletions(ctx context.Context) ([]int64, error)
}

// CertificateRepository persists issued certificates.
type CertificateRepository interface {
	// CreateCertificate inserts c unless the user already holds one for the same quiz or course;
	// it returns the stored record and whether it was newly created.
	CreateCertificate(ctx context.Context, c domain.Certificate) (domain.Certificate, bool, error)
	SetCertificateFile(ctx context.Context, id int64, url string) error
	CertificateByUUID(ctx context.Context, id string) (domain.Certificate, error)
	CertificateByNumber(ctx context.Context, number string) (domain.Certificate, error)
	ListCertificates(ctx context.Context, userID int64) ([]domain.Certificate, error)
}

// LeaderboardStore holds ranked leaderboards.
type LeaderboardStore interface {
	ReplaceLeaderboard(ctx context.Context, quizID int64, entries []domain.LeaderboardEntry) error
	TopEntries(ctx context.Context, quizID int64, limit int) ([]domain.LeaderboardEntry, error)
	EntryFor(ctx context.Context, quizID, userID int64) (domain.LeaderboardEntry, error)
}

// AnalyticsRepository runs aggregate queries over attempts, enrollments and events.
type AnalyticsRepository interface {
	UserStats(ctx context.Context, userID int64) (domain.UserStats, error)
	SystemStats(ctx context.Context) (domain.SystemStats, error)
	QuizStats(ctx context.Context, quizID int64) (domain.QuizStats, error)
	QuizSummaries(ctx context.Context, createdBy int64) ([]domain.QuizStats, error)
	CourseStats(ctx context.Context, courseID int64) (domain.CourseStats, error)
	RecordEvent(ctx context.Context, e *domain.Event) error
}

// CourseRepository persists courses, lessons, enrollments, progress and ratings.
type CourseRepository interface {
	CreateCourse(ctx context.Context, c *domain.Course) error
	UpdateCourse(ctx context.Context, c *domain.Course) error
	DeleteCourse(ctx context.Context, id int64) error
	// CourseByID returns the course with lessons ordered.
	CourseByID(ctx context.Context, id int64) (domain.Course, error)
	CourseBySlug(ctx context.Context, slug string) (domain.Course, error)
	ListCourses(ctx context.Context, f domain.CourseFilter) ([]domain.Course, int, error)
	SlugTaken(ctx context.Context, slug string, exceptID int64) (bool, error)

	CreateLesson(ctx context.Context, l *domain.Lesson) error
	UpdateLesson(ctx context.Context, l *domain.Lesson) error
	DeleteLesson(ctx context.Context, id int64) error
	LessonByID(ctx context.Context, id int64) (domain.Lesson, error)

	// CreateEnrollment fails with domain.ErrAlreadyEnrolled on a duplicate and domain.ErrCourseFull
	// when maxEnrollments (>0) is reached.
	CreateEnrollment(ctx context.Context, e *domain.Enrollment, maxEnrollments int) error
	UpdateEnrollment(ctx context.Context, e *domain.Enrollment) error
	EnrollmentFor(ctx context.Context, userID, courseID int64) (domain.Enrollment, error)
	ListEnrollments(ctx context.Context, userID int64) ([]domain.Enrollment, error)

	// SaveLessonProgress upserts by (enrollment, lesson).
	SaveLessonProgress(ctx context.Context, p *domain.LessonProgress) error
	LessonProgressFor(ctx context.Context, enrollmentID int64) ([]domain.LessonProgress, error)

	// UpsertRating stores one rating per (user, course).
	UpsertRating(ctx context.Context, r *domain.CourseRating) error
	ListRatings(ctx context.Context, courseID int64) ([]domain.CourseRating, error)
}

// PaymentRepository persists payments and gateway notifications.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	UpdatePayment(ctx context.Context, p *domain.Payment) error
	PaymentByID(ctx context.Context, id int64) (domain.Payment, error)
	PaymentByOrderID(ctx context.Context, orderID string) (domain.Payment, error)
	ListPayments(ctx context.Context, userID int64) ([]domain.Payment, error)
	HasCompletedPurchase(ctx context.Context, userID, courseID int64) (bool, error)
	RecordEvent(ctx context.Context, e *domain.PaymentEvent) error
}

// PaymentGateway talks to the payment provider.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, p domain.Payment, customer domain.User) (domain.Charge, error)
	Status(ctx context.Context, orderID string) (domain.GatewayStatus, error)
	Refund(ctx context.Context, p domain.Payment, reason string) error
	VerifySignature(n domain.GatewayNotification) bool
}

// ProctoringRepository persists proctoring sessions, violations and settings.
type ProctoringRepository interface {
	// CreateSession fails with domain.ErrSessionActive when the user has an open session on the quiz.
	CreateSession(ctx context.Context, s *domain.ProctoringSession) error
	SessionByID(ctx context.Context, id int64) (domain.ProctoringSession, error)
	UpdateSession(ctx context.Context, s *domain.ProctoringSession) error
	// AddViolation stores v and applies fn to the locked session in one transaction.
	AddViolation(ctx context.Context, v *domain.Violation, fn func(s *domain.ProctoringSession) error) (domain.ProctoringSession, error)
	ViolationByID(ctx context.Context, id int64) (domain.Violation, error)
	UpdateViolation(ctx context.Context, v *domain.Violation) error
	ListViolations(ctx context.Context, sessionID int64) ([]domain.Violation, error)
	// Settings returns stored settings or the defaults.
	Settings(ctx context.Context, quizID int64) (domain.ProctoringSettings, error)
	SaveSettings(ctx context.Context, s *domain.ProctoringSettings) error
	// CloseStaleSessions completes active sessions started before cutoff.
	CloseStaleSessions(ctx context.Context, cutoff, now time.Time) (int, error)
}

// TaskQueue schedules background work.
type TaskQueue interface {
	Enqueue(ctx context.Context, task domain.Task) error
}

// Notifier sends transactional emails.
type Notifier interface {
	VerificationEmail(ctx context.Context, u domain.User, token string) error
	PasswordResetEmail(ctx context.Context, u domain.User, token string) error
	QuizResultEmail(ctx context.Context, u domain.User, quiz domain.Quiz, a domain.Attempt) error
	CertificateEmail(ctx context.Context, u domain.User, c domain.Certificate) error
}

// CertificateRenderer turns a certificate into a printable document.
type CertificateRenderer interface {
	Render(ctx context.Context, c domain.Certificate) ([]byte, error)
}

// FileStorage stores generated files and returns a public URL.
type FileStorage interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TokenIssuer signs access and refresh tokens.
type TokenIssuer interface {
	Issue(u domain.User) (TokenPair, error)
	// ParseRefresh validates a refresh token and returns the user ID.
	ParseRefresh(token string) (int64, error)
}

// Logger is the logging surface the services need.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
