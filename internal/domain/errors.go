package domain

import (
	"errors"
	"strings"
)

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAttemptNotFound is returned for unknown attempts.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrSessionNotFound is returned when a proctoring session does not exist.
	ErrSessionNotFound = errors.New("proctoring session not found")
	// ErrNotRanked is returned when a user has no leaderboard entry for a quiz.
	ErrNotRanked = errors.New("user not ranked on this leaderboard")

	ErrAnswerNotFound      = errors.New("answer not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrTagNotFound         = errors.New("tag not found")
	ErrCourseNotFound      = errors.New("course not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrViolationNotFound   = errors.New("violation not found")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrAccountInactive    = errors.New("account deactivated")
	ErrUnauthenticated    = errors.New("user not authenticated")
	// ErrForbidden is returned when the caller lacks the role or ownership for an action.
	ErrForbidden = errors.New("permission denied")

	ErrAttemptSubmitted     = errors.New("attempt already submitted")
	ErrMaxAttemptsReached   = errors.New("maximum attempts reached for this quiz")
	ErrQuizNotPublished     = errors.New("quiz is not published")
	ErrAttemptInProgress    = errors.New("attempt already in progress")
	ErrAlreadyEnrolled      = errors.New("already enrolled in this course")
	ErrCourseFull           = errors.New("course has reached its enrollment limit")
	ErrCourseNotPublished   = errors.New("course is not published")
	ErrPaymentRequired      = errors.New("course requires a completed payment")
	ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")
	ErrSessionActive        = errors.New("an active proctoring session already exists")
	ErrSessionEnded         = errors.New("proctoring session already ended")
	ErrNotPassed            = errors.New("no passing attempt for this quiz")
	ErrCourseIncomplete     = errors.New("course not completed")

	// ErrGatewayUnavailable wraps payment provider failures; the cause is logged, never returned to clients.
	ErrGatewayUnavailable = errors.New("payment provider unavailable")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError carries field level messages rendered as a 400 response.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

// FieldValidationError is a shortcut for a single field message.
func FieldValidationError(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Error: msg}}}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		msgs = append(msgs, f.Field+": "+f.Error)
	}
	return strings.Join(msgs, "; ")
}

// Fields accumulates field errors; Err returns nil when none were added.
type Fields struct {
	list []FieldError
}

func (f *Fields) Add(field, msg string) {
	f.list = append(f.list, FieldError{Field: field, Error: msg})
}

func (f *Fields) Err() error {
	if len(f.list) == 0 {
		return nil
	}
	return &ValidationError{Fields: f.list}
}
