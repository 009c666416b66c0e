package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// DefaultSessionMaxAge is how long a proctoring session may stay active before cleanup completes it.
const DefaultSessionMaxAge = 24 * time.Hour

type SessionInput struct {
	QuizID    int64  `json:"quiz_id" validate:"required,gt=0"`
	AttemptID *int64 `json:"attempt_id" validate:"omitempty,gt=0"`
}

type ViolationInput struct {
	Type        domain.ViolationType `json:"violation_type" validate:"required,oneof=multiple_faces no_face tab_switch fullscreen_exit copy_paste suspicious_activity"`
	Severity    domain.Severity      `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Description string               `json:"description" validate:"max=1000"`
	Evidence    json.RawMessage      `json:"evidence_data"`
	RiskScore   *float64             `json:"risk_score" validate:"omitempty,gte=0,lte=100"`
}

type ResolveInput struct {
	Notes string `json:"resolution_notes" validate:"max=2000"`
}

type SettingsInput struct {
	EnableWebcam          bool    `json:"enable_webcam"`
	FaceDetection         bool    `json:"face_detection"`
	MultipleFaceDetection bool    `json:"multiple_face_detection"`
	PreventTabSwitch      bool    `json:"prevent_tab_switch"`
	PreventFullscreenExit bool    `json:"prevent_fullscreen_exit"`
	PreventCopyPaste      bool    `json:"prevent_copy_paste"`
	RiskThreshold         float64 `json:"risk_threshold" validate:"gt=0,lte=1000"`
	AutoTerminate         bool    `json:"auto_terminate"`
}

// AttemptInvalidator marks attempts invalid.
type AttemptInvalidator interface {
	Invalidate(ctx context.Context, attemptID int64) error
}

// ProctoringService records client-reported violations and scores session risk.
type ProctoringService struct {
	repo        ProctoringRepository
	quizzes     QuizSource
	attempts    AttemptRepository
	invalidator AttemptInvalidator
	now         func() time.Time
	log         Logger
}

func NewProctoringService(repo ProctoringRepository, quizzes QuizSource, attempts AttemptRepository, invalidator AttemptInvalidator, log Logger) *ProctoringService {
	return &ProctoringService{
		repo:        repo,
		quizzes:     quizzes,
		attempts:    attempts,
		invalidator: invalidator,
		now:         time.Now,
		log:         orNop(log),
	}
}

// Start opens a session. A user has at most one open session per quiz.
func (s *ProctoringService) Start(ctx context.Context, actor Actor, in SessionInput) (domain.ProctoringSession, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, in.QuizID)
	if err != nil {
		return domain.ProctoringSession{}, err
	}
	if !quiz.IsPublished && !actor.CanManage(quiz.CreatedBy) {
		return domain.ProctoringSession{}, domain.ErrQuizNotFound
	}
	if in.AttemptID != nil {
		a, err := s.attempts.AttemptByID(ctx, *in.AttemptID)
		if errors.Is(err, domain.ErrAttemptNotFound) {
			return domain.ProctoringSession{}, domain.FieldValidationError("attempt_id", "attempt does not exist")
		}
		if err != nil {
			return domain.ProctoringSession{}, err
		}
		if a.UserID != actor.UserID || a.QuizID != in.QuizID {
			return domain.ProctoringSession{}, domain.FieldValidationError("attempt_id", "attempt does not belong to this quiz session")
		}
	}

	sess := domain.ProctoringSession{
		UserID:    actor.UserID,
		QuizID:    in.QuizID,
		AttemptID: in.AttemptID,
		Status:    domain.ProctoringActive,
		IsValid:   true,
		StartedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, &sess); err != nil {
		if errors.Is(err, domain.ErrSessionActive) {
			return domain.ProctoringSession{}, err
		}
		return domain.ProctoringSession{}, errors.Wrap(err, "create session")
	}
	return sess, nil
}

// End completes an open session.
func (s *ProctoringService) End(ctx context.Context, actor Actor, sessionID int64) (domain.ProctoringSession, error) {
	sess, err := s.Get(ctx, actor, sessionID)
	if err != nil {
		return domain.ProctoringSession{}, err
	}
	if !sess.Open() {
		return domain.ProctoringSession{}, domain.ErrSessionEnded
	}
	if sess.Status == domain.ProctoringActive {
		sess.Status = domain.ProctoringCompleted
	}
	sess.EndedAt = ptrTime(s.now())
	if err := s.repo.UpdateSession(ctx, &sess); err != nil {
		return domain.ProctoringSession{}, errors.Wrap(err, "update session")
	}
	return sess, nil
}

// Get returns a session to its owner or staff.
func (s *ProctoringService) Get(ctx context.Context, actor Actor, sessionID int64) (domain.ProctoringSession, error) {
	sess, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return domain.ProctoringSession{}, err
	}
	if !actor.CanRead(sess.UserID) {
		return domain.ProctoringSession{}, domain.ErrForbidden
	}
	return sess, nil
}

// RecordViolation stores a violation and updates the session's risk. Crossing the quiz's
// risk threshold terminates the session (and invalidates its attempt) when auto-terminate
// is on, otherwise it flags the session.
func (s *ProctoringService) RecordViolation(ctx context.Context, actor Actor, sessionID int64, in ViolationInput) (domain.Violation, domain.ProctoringSession, error) {
	sess, err := s.Get(ctx, actor, sessionID)
	if err != nil {
		return domain.Violation{}, domain.ProctoringSession{}, err
	}
	if !sess.Open() {
		return domain.Violation{}, domain.ProctoringSession{}, domain.ErrSessionEnded
	}
	settings, err := s.repo.Settings(ctx, sess.QuizID)
	if err != nil {
		return domain.Violation{}, domain.ProctoringSession{}, errors.Wrap(err, "load settings")
	}

	severity := in.Severity
	if severity == "" {
		severity = domain.SeverityMedium
	}
	risk := severity.DefaultRisk()
	if in.RiskScore != nil {
		risk = *in.RiskScore
	}
	now := s.now()
	v := domain.Violation{
		UUID:        uuid.New(),
		SessionID:   sessionID,
		Type:        in.Type,
		Severity:    severity,
		Description: strings.TrimSpace(in.Description),
		Evidence:    in.Evidence,
		RiskScore:   risk,
		CreatedAt:   now,
	}

	terminated := false
	updated, err := s.repo.AddViolation(ctx, &v, func(sess *domain.ProctoringSession) error {
		if !sess.Open() {
			return domain.ErrSessionEnded
		}
		sess.ViolationCount++
		sess.TotalRiskScore += v.RiskScore
		if settings.RiskThreshold > 0 && sess.TotalRiskScore >= settings.RiskThreshold {
			if settings.AutoTerminate {
				sess.Status = domain.ProctoringTerminated
				sess.IsValid = false
				sess.EndedAt = ptrTime(now)
				terminated = true
			} else {
				sess.Status = domain.ProctoringFlagged
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionEnded) {
			return domain.Violation{}, domain.ProctoringSession{}, err
		}
		return domain.Violation{}, domain.ProctoringSession{}, errors.Wrap(err, "record violation")
	}

	if terminated && updated.AttemptID != nil {
		if err := s.invalidator.Invalidate(ctx, *updated.AttemptID); err != nil {
			s.log.Error("invalidate attempt", "attempt", *updated.AttemptID, "session", updated.ID, "err", err)
		}
	}
	return v, updated, nil
}

// Violations lists a session's violations for staff.
func (s *ProctoringService) Violations(ctx context.Context, actor Actor, sessionID int64) ([]domain.Violation, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if _, err := s.repo.SessionByID(ctx, sessionID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListViolations(ctx, sessionID)
	return list, errors.Wrap(err, "list violations")
}

// Resolve closes a violation with notes.
func (s *ProctoringService) Resolve(ctx context.Context, actor Actor, violationID int64, in ResolveInput) (domain.Violation, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Violation{}, err
	}
	v, err := s.repo.ViolationByID(ctx, violationID)
	if err != nil {
		return domain.Violation{}, err
	}
	v.IsResolved = true
	v.ResolvedAt = ptrTime(s.now())
	v.ResolutionNotes = strings.TrimSpace(in.Notes)
	if err := s.repo.UpdateViolation(ctx, &v); err != nil {
		return domain.Violation{}, errors.Wrap(err, "update violation")
	}
	return v, nil
}

// Settings returns a quiz's proctoring settings, or the defaults.
func (s *ProctoringService) Settings(ctx context.Context, actor Actor, quizID int64) (domain.ProctoringSettings, error) {
	if _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
		return domain.ProctoringSettings{}, err
	}
	st, err := s.repo.Settings(ctx, quizID)
	return st, errors.Wrap(err, "load settings")
}

func (s *ProctoringService) UpdateSettings(ctx context.Context, actor Actor, quizID int64, in SettingsInput) (domain.ProctoringSettings, error) {
	if _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
		return domain.ProctoringSettings{}, err
	}
	st := domain.ProctoringSettings{
		QuizID:                quizID,
		EnableWebcam:          in.EnableWebcam,
		FaceDetection:         in.FaceDetection,
		MultipleFaceDetection: in.MultipleFaceDetection,
		PreventTabSwitch:      in.PreventTabSwitch,
		PreventFullscreenExit: in.PreventFullscreenExit,
		PreventCopyPaste:      in.PreventCopyPaste,
		RiskThreshold:         in.RiskThreshold,
		AutoTerminate:         in.AutoTerminate,
		UpdatedAt:             s.now(),
	}
	if err := s.repo.SaveSettings(ctx, &st); err != nil {
		return domain.ProctoringSettings{}, errors.Wrap(err, "save settings")
	}
	return st, nil
}

// CleanupStale completes sessions left active for longer than maxAge.
func (s *ProctoringService) CleanupStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	now := s.now()
	n, err := s.repo.CloseStaleSessions(ctx, now.Add(-maxAge), now)
	return n, errors.Wrap(err, "close stale sessions")
}

func (s *ProctoringService) managedQuiz(ctx context.Context, actor Actor, quizID int64) (domain.Quiz, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !actor.CanManage(quiz.CreatedBy) {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}
