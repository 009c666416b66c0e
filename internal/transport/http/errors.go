package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

var errInvalidBody = echo.NewHTTPError(http.StatusBadRequest, "invalid request body")

var (
	unauthorized = []error{
		domain.ErrUnauthenticated,
		domain.ErrInvalidCredentials,
		domain.ErrInvalidToken,
		domain.ErrInvalidSignature,
	}
	forbidden = []error{
		domain.ErrForbidden,
		domain.ErrAccountInactive,
		domain.ErrQuizNotPublished,
		domain.ErrCourseNotPublished,
		domain.ErrMaxAttemptsReached,
	}
	notFound = []error{
		domain.ErrQuizNotFound,
		domain.ErrQuestionNotFound,
		domain.ErrAttemptNotFound,
		domain.ErrAnswerNotFound,
		domain.ErrSessionNotFound,
		domain.ErrNotRanked,
		domain.ErrUserNotFound,
		domain.ErrTagNotFound,
		domain.ErrCourseNotFound,
		domain.ErrLessonNotFound,
		domain.ErrCertificateNotFound,
		domain.ErrEnrollmentNotFound,
		domain.ErrPaymentNotFound,
		domain.ErrViolationNotFound,
	}
	conflicts = []error{
		domain.ErrAttemptSubmitted,
		domain.ErrAttemptInProgress,
		domain.ErrAlreadyEnrolled,
		domain.ErrCourseFull,
		domain.ErrSessionActive,
		domain.ErrSessionEnded,
		domain.ErrPaymentNotRefundable,
	}
	badRequests = []error{
		domain.ErrNotPassed,
		domain.ErrCourseIncomplete,
	}
)

// newErrorHandler returns an echo.HTTPErrorHandler that knows how to handle our errors.
// Anything unclassified is logged and answered with a bare 500.
func newErrorHandler(v *requestValidator, log app.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, message := classify(err, v)
		if code == http.StatusInternalServerError {
			log.Error("request failed", "method", c.Request().Method, "path", c.Path(),
				"user", actorFrom(c).UserID, "err", err)
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		if c.Response().Committed {
			return
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, message)
		}
		if err != nil {
			log.Error("write error response", "err", err)
		}
	}
}

func classify(err error, v *requestValidator) (int, interface{}) {
	var (
		httpErr  *echo.HTTPError
		fieldErr *domain.ValidationError
		valErrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &valErrs):
		return http.StatusBadRequest, v.fieldMessages(valErrs)
	case errors.As(err, &fieldErr):
		if len(fieldErr.Fields) == 0 {
			return http.StatusBadRequest, fieldErr.Error()
		}
		msgs := make(map[string]string, len(fieldErr.Fields))
		for _, f := range fieldErr.Fields {
			msgs[f.Field] = f.Error
		}
		return http.StatusBadRequest, msgs
	case errors.As(err, &httpErr):
		if httpErr.Code == http.StatusInternalServerError {
			break
		}
		return httpErr.Code, httpErr.Message
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired, domain.ErrPaymentRequired.Error()
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway, domain.ErrGatewayUnavailable.Error()
	}

	for _, group := range []struct {
		code int
		errs []error
	}{
		{http.StatusUnauthorized, unauthorized},
		{http.StatusForbidden, forbidden},
		{http.StatusNotFound, notFound},
		{http.StatusConflict, conflicts},
		{http.StatusBadRequest, badRequests},
	} {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.code, target.Error()
			}
		}
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
}
