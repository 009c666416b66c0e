package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// CertificateService issues certificates for passed quizzes and completed courses.
// Issuance is idempotent per user and quiz, and per user and course.
type CertificateService struct {
	certs    CertificateRepository
	attempts AttemptRepository
	users    UserRepository
	quizzes  QuizSource
	courses  CourseRepository
	renderer CertificateRenderer
	storage  FileStorage
	mail     Notifier
	now      func() time.Time
	log      Logger
}

// CertificateDeps groups the collaborators of CertificateService. Renderer and Storage are optional.
type CertificateDeps struct {
	Certificates CertificateRepository
	Attempts     AttemptRepository
	Users        UserRepository
	Quizzes      QuizSource
	Courses      CourseRepository
	Renderer     CertificateRenderer
	Storage      FileStorage
	Mail         Notifier
	Log          Logger
}

func NewCertificateService(d CertificateDeps) *CertificateService {
	return &CertificateService{
		certs:    d.Certificates,
		attempts: d.Attempts,
		users:    d.Users,
		quizzes:  d.Quizzes,
		courses:  d.Courses,
		renderer: d.Renderer,
		storage:  d.Storage,
		mail:     d.Mail,
		now:      time.Now,
		log:      orNop(d.Log),
	}
}

// IssueForAttempt issues the quiz certificate earned by a passed attempt.
func (s *CertificateService) IssueForAttempt(ctx context.Context, attemptID int64) (domain.Certificate, bool, error) {
	a, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	if !a.Completed() || !a.Passed || !a.IsValid {
		return domain.Certificate{}, false, domain.ErrNotPassed
	}
	return s.issueQuiz(ctx, a)
}

// RequestForQuiz issues (or returns) the caller's certificate for a quiz using their best passed attempt.
func (s *CertificateService) RequestForQuiz(ctx context.Context, actor Actor, quizID int64) (domain.Certificate, error) {
	attempts, _, err := s.attempts.ListAttempts(ctx, domain.AttemptFilter{
		Page:      domain.Page{Page: 1, PerPage: domain.MaxPerPage},
		UserID:    actor.UserID,
		QuizID:    quizID,
		Status:    domain.AttemptCompleted,
		OnlyValid: true,
	})
	if err != nil {
		return domain.Certificate{}, errors.Wrap(err, "list attempts")
	}

	var best *domain.Attempt
	for i := range attempts {
		a := attempts[i]
		if a.Passed && (best == nil || betterAttempt(a, *best)) {
			best = &attempts[i]
		}
	}
	if best == nil {
		return domain.Certificate{}, domain.ErrNotPassed
	}
	c, _, err := s.issueQuiz(ctx, *best)
	return c, err
}

// IssueForCourse issues the course certificate of a completed enrollment.
func (s *CertificateService) IssueForCourse(ctx context.Context, userID, courseID int64) (domain.Certificate, bool, error) {
	e, err := s.courses.EnrollmentFor(ctx, userID, courseID)
	if errors.Is(err, domain.ErrEnrollmentNotFound) {
		return domain.Certificate{}, false, domain.ErrCourseIncomplete
	}
	if err != nil {
		return domain.Certificate{}, false, err
	}
	if e.Status != domain.EnrollmentCompleted {
		return domain.Certificate{}, false, domain.ErrCourseIncomplete
	}
	course, err := s.courses.CourseByID(ctx, courseID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return domain.Certificate{}, false, err
	}

	completed := s.now()
	if e.CompletedAt != nil {
		completed = *e.CompletedAt
	}
	c := domain.Certificate{
		Number:   certificateNumber("C", courseID, userID),
		Kind:     domain.CertificateCourse,
		UserID:   userID,
		CourseID: ptrInt64(courseID),
		Data: domain.CertificateData{
			UserName:       u.DisplayName(),
			Title:          course.Title,
			Score:          100,
			CompletionDate: completed,
		},
	}
	return s.issue(ctx, c, u)
}

// Mine lists the caller's certificates.
func (s *CertificateService) Mine(ctx context.Context, actor Actor) ([]domain.Certificate, error) {
	certs, err := s.certs.ListCertificates(ctx, actor.UserID)
	return certs, errors.Wrap(err, "list certificates")
}

// Get returns a certificate by its public ID to its owner or staff.
func (s *CertificateService) Get(ctx context.Context, actor Actor, id string) (domain.Certificate, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	c, err := s.certs.CertificateByUUID(ctx, id)
	if err != nil {
		return domain.Certificate{}, err
	}
	if !actor.CanRead(c.UserID) {
		return domain.Certificate{}, domain.ErrForbidden
	}
	return c, nil
}

// Verify looks a certificate up by number; it is public.
func (s *CertificateService) Verify(ctx context.Context, number string) (domain.Certificate, error) {
	return s.certs.CertificateByNumber(ctx, strings.ToUpper(strings.TrimSpace(number)))
}

func (s *CertificateService) issueQuiz(ctx context.Context, a domain.Attempt) (domain.Certificate, bool, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	u, err := s.users.UserByID(ctx, a.UserID)
	if err != nil {
		return domain.Certificate{}, false, err
	}
	c := domain.Certificate{
		Number:    certificateNumber("Q", a.QuizID, a.UserID),
		Kind:      domain.CertificateQuiz,
		UserID:    a.UserID,
		QuizID:    ptrInt64(a.QuizID),
		AttemptID: ptrInt64(a.ID),
		Data: domain.CertificateData{
			UserName:       u.DisplayName(),
			Title:          quiz.Title,
			Score:          a.PercentageScore,
			CompletionDate: completedAt(a),
		},
	}
	return s.issue(ctx, c, u)
}

// issue stores c unless an equivalent certificate exists. New certificates are rendered,
// uploaded and mailed; failures there are logged and do not fail issuance.
func (s *CertificateService) issue(ctx context.Context, c domain.Certificate, u domain.User) (domain.Certificate, bool, error) {
	c.UUID = uuid.New()
	c.IssuedAt = s.now()

	stored, created, err := s.certs.CreateCertificate(ctx, c)
	if err != nil {
		return domain.Certificate{}, false, errors.Wrap(err, "store certificate")
	}
	if !created {
		return stored, false, nil
	}

	if url, err := s.publish(ctx, stored); err != nil {
		s.log.Error("publish certificate", "certificate", stored.Number, "err", err)
	} else if url != "" {
		stored.FileURL = url
	}
	if err := s.mail.CertificateEmail(ctx, u, stored); err != nil {
		s.log.Error("send certificate email", "certificate", stored.Number, "err", err)
	}
	return stored, true, nil
}

func (s *CertificateService) publish(ctx context.Context, c domain.Certificate) (string, error) {
	if s.renderer == nil || s.storage == nil {
		return "", nil
	}
	pdf, err := s.renderer.Render(ctx, c)
	if err != nil {
		return "", errors.Wrap(err, "render")
	}
	url, err := s.storage.Upload(ctx, c.Number+".pdf", pdf)
	if err != nil {
		return "", errors.Wrap(err, "upload")
	}
	if err := s.certs.SetCertificateFile(ctx, c.ID, url); err != nil {
		return "", errors.Wrap(err, "save file url")
	}
	return url, nil
}

func certificateNumber(kind string, subjectID, userID int64) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("CERT-%s%d-U%d-%s", kind, subjectID, userID, suffix)
}
