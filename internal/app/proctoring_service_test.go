package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func TestViolationsFlagSessionPastThreshold(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Watched"}, singleSelect("2 + 2?", "4", "3"))

	sess, err := e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ProctoringActive, sess.Status)

	_, err = e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID})
	assert.True(t, errors.Is(err, domain.ErrSessionActive), "got %v", err)

	v, sess, err := e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{Type: domain.ViolationTabSwitch})
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityMedium, v.Severity)
	assert.InDelta(t, 15, v.RiskScore, 0.001)
	assert.Equal(t, domain.ProctoringActive, sess.Status)

	_, sess, err = e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{Type: domain.ViolationMultipleFaces, Severity: domain.SeverityCritical})
	require.NoError(t, err)
	assert.InDelta(t, 65, sess.TotalRiskScore, 0.001)
	assert.Equal(t, domain.ProctoringActive, sess.Status)

	_, sess, err = e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{Type: domain.ViolationNoFace, Severity: domain.SeverityLow})
	require.NoError(t, err)
	assert.Equal(t, 3, sess.ViolationCount)
	assert.InDelta(t, 70, sess.TotalRiskScore, 0.001)
	// without auto-terminate the session is flagged but stays open
	assert.Equal(t, domain.ProctoringFlagged, sess.Status)
	assert.True(t, sess.Open())

	ended, err := e.proctoring.End(ctx, student, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProctoringFlagged, ended.Status)
	require.NotNil(t, ended.EndedAt)

	_, _, err = e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{Type: domain.ViolationCopyPaste})
	assert.True(t, errors.Is(err, domain.ErrSessionEnded), "got %v", err)
	_, err = e.proctoring.End(ctx, student, sess.ID)
	assert.True(t, errors.Is(err, domain.ErrSessionEnded), "got %v", err)
}

func TestAutoTerminateInvalidatesAttempt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Strict"}, singleSelect("2 + 2?", "4", "3"))

	_, err := e.proctoring.UpdateSettings(ctx, student, quiz.ID, app.SettingsInput{RiskThreshold: 40, AutoTerminate: true})
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
	st, err := e.proctoring.UpdateSettings(ctx, owner, quiz.ID, app.SettingsInput{RiskThreshold: 40, AutoTerminate: true})
	require.NoError(t, err)
	assert.True(t, st.AutoTerminate)

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	attemptID := sheet.Attempt.ID
	sess, err := e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID, AttemptID: &attemptID})
	require.NoError(t, err)

	risk := 45.0
	_, sess, err = e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{
		Type:      domain.ViolationSuspiciousActivity,
		RiskScore: &risk,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ProctoringTerminated, sess.Status)
	assert.False(t, sess.IsValid)
	require.NotNil(t, sess.EndedAt)

	a, err := e.store.AttemptByID(ctx, attemptID)
	require.NoError(t, err)
	assert.False(t, a.IsValid)

	// a terminated session no longer blocks a new one
	_, err = e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID})
	assert.NoError(t, err)
}

func TestSessionAttemptMustMatch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	_, other := e.user("other", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Mine"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, other, quiz.ID)
	require.NoError(t, err)
	attemptID := sheet.Attempt.ID

	_, err = e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID, AttemptID: &attemptID})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "attempt_id", verr.Fields[0].Field)
}

func TestViolationReviewIsStaffOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	_, other := e.user("other", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Reviewed"}, singleSelect("2 + 2?", "4", "3"))

	sess, err := e.proctoring.Start(ctx, student, app.SessionInput{QuizID: quiz.ID})
	require.NoError(t, err)
	v, _, err := e.proctoring.RecordViolation(ctx, student, sess.ID, app.ViolationInput{Type: domain.ViolationFullscreenExit, Description: " left fullscreen "})
	require.NoError(t, err)
	assert.Equal(t, "left fullscreen", v.Description)

	_, err = e.proctoring.Get(ctx, other, sess.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
	_, err = e.proctoring.Violations(ctx, student, sess.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
	_, err = e.proctoring.Resolve(ctx, student, v.ID, app.ResolveInput{})
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)

	list, err := e.proctoring.Violations(ctx, owner, sess.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsResolved)

	resolved, err := e.proctoring.Resolve(ctx, owner, v.ID, app.ResolveInput{Notes: "Student had a power cut."})
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)

	settings, err := e.proctoring.Settings(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.InDelta(t, 70, settings.RiskThreshold, 0.001)
	assert.False(t, settings.AutoTerminate)
}
