package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func TestStartResumesOpenAttempt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Resume"},
		singleSelect("2 + 2?", "4", "3"),
		singleSelect("3 + 3?", "6", "5"))

	first, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, first.Attempt)
	assert.Len(t, first.Questions, 2)
	assert.Equal(t, domain.AttemptInProgress, first.Attempt.Status)

	second, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	for i := range first.Questions {
		assert.Equal(t, first.Questions[i].ID, second.Questions[i].ID, "question order is stable across resumes")
	}
}

func TestOpenAttemptKeepsItsSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Growing"},
		singleSelect("1 + 1?", "2", "3"),
		singleSelect("2 + 2?", "4", "3"),
		singleSelect("3 + 3?", "6", "5"))

	started, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	require.Len(t, started.Questions, 3)

	for i := 0; i < 6; i++ {
		_, err := e.catalog.AddQuestion(ctx, owner, quiz.ID, singleSelect(fmt.Sprintf("%d * 2?", i+4), fmt.Sprint((i+4)*2), "0"))
		require.NoError(t, err)
	}

	got, err := e.attempts.Questions(ctx, student, quiz.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Attempt)
	assert.Equal(t, started.Attempt.ID, got.Attempt.ID)
	require.Len(t, got.Questions, len(started.Questions))
	for i := range started.Questions {
		assert.Equal(t, started.Questions[i].ID, got.Questions[i].ID)
	}

	grown, err := e.quizzes.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	require.Len(t, grown.Questions, 9)
	a, err := e.attempts.Submit(ctx, student, got.Attempt.ID, app.SubmitInput{Answers: answers(grown, got, true)})
	require.NoError(t, err)
	assert.InDelta(t, 100, a.PercentageScore, 0.001)

	// with nothing open the caller sees a fresh selection from the grown quiz
	fresh, err := e.attempts.Questions(ctx, student, quiz.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.Attempt)
	assert.Len(t, fresh.Questions, 5)
}

func TestSubmitGradesAndQueuesCompletion(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Grading"},
		singleSelect("2 + 2?", "4", "3"),
		singleSelect("3 + 3?", "6", "5"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)

	a, err := e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, a.Status)
	assert.Equal(t, 2, a.CorrectAnswers)
	assert.InDelta(t, 100, a.PercentageScore, 0.001)
	assert.True(t, a.Passed)
	assert.True(t, a.IsValid)
	require.NotNil(t, a.SubmittedAt)

	require.Equal(t, 1, e.queue.Len())
	d, ok, err := e.queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskAttemptCompleted, d.Task.Kind)
	assert.Equal(t, a.ID, d.Task.AttemptID)
}

func TestSubmitTwiceIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Twice"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	in := app.SubmitInput{Answers: answers(quiz, sheet, false)}

	first, err := e.attempts.Submit(ctx, student, sheet.Attempt.ID, in)
	require.NoError(t, err)
	assert.False(t, first.Passed)

	_, err = e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	assert.True(t, errors.Is(err, domain.ErrAttemptSubmitted), "got %v", err)

	stored, err := e.attempts.Get(ctx, student, sheet.Attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, first.PercentageScore, stored.PercentageScore, "second submission must not regrade")
}

func TestSubmitBelongsToOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	_, other := e.user("other", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Owner"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)

	_, err = e.attempts.Submit(ctx, other, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
	_, err = e.attempts.Get(ctx, other, sheet.Attempt.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)
}

func TestSubmitRejectsQuestionsOutsideSelection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Selection"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)

	_, err = e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: []domain.AnswerSubmission{{QuestionID: 9999, OptionIDs: []int64{1}}}})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "answers[0].question_id", verr.Fields[0].Field)
}

func TestMaxAttemptsReached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Once", MaxAttempts: 1}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	_, err = e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)

	_, err = e.attempts.Start(ctx, student, quiz.ID)
	assert.True(t, errors.Is(err, domain.ErrMaxAttemptsReached), "got %v", err)
}

func TestUnpublishedQuizIsHiddenFromStudents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)

	quiz, err := e.catalog.CreateQuiz(ctx, owner, app.QuizInput{Title: "Draft"})
	require.NoError(t, err)
	_, err = e.catalog.AddQuestion(ctx, owner, quiz.ID, singleSelect("2 + 2?", "4", "3"))
	require.NoError(t, err)

	_, err = e.attempts.Start(ctx, student, quiz.ID)
	assert.True(t, errors.Is(err, domain.ErrQuizNotFound), "got %v", err)

	// the author can still preview it
	_, err = e.attempts.Questions(ctx, owner, quiz.ID)
	assert.NoError(t, err)
}

func TestLateSubmissionIsInvalid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Timed", TimeLimit: 60}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	_, err = e.store.UpdateAttempt(ctx, sheet.Attempt.ID, func(a *domain.Attempt) ([]domain.Answer, error) {
		a.StartedAt = time.Now().Add(-time.Hour)
		return nil, nil
	})
	require.NoError(t, err)

	a, err := e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptCompleted, a.Status)
	assert.True(t, a.Passed)
	assert.False(t, a.IsValid, "submission past the time limit is kept but invalid")

	entries, err := e.leaderboard.Rebuild(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReviewRevealsKeysOnlyWhenAllowed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Review"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)

	_, err = e.attempts.Review(ctx, student, sheet.Attempt.ID)
	assert.True(t, errors.Is(err, domain.ErrAttemptInProgress), "got %v", err)

	_, err = e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, false)})
	require.NoError(t, err)

	review, err := e.attempts.Review(ctx, student, sheet.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, review.Items, 1)
	assert.Empty(t, review.Items[0].CorrectOptions)
	for _, o := range review.Items[0].Question.Options {
		assert.False(t, o.IsCorrect)
	}
	require.NotNil(t, review.Items[0].Answer)
	assert.False(t, review.Items[0].Answer.IsCorrect)

	staff, err := e.attempts.Review(ctx, owner, sheet.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, staff.Items[0].CorrectOptions, 1)
	assert.Equal(t, "4", staff.Items[0].CorrectOptions[0].Text)
}

func TestManualGradingRecomputesScore(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Essay"},
		singleSelect("2 + 2?", "4", "3"),
		app.QuestionInput{Type: domain.QuestionEssay, Text: "Explain addition.", Points: 5})

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	a, err := e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)
	assert.Equal(t, 1, a.PendingGrading)
	assert.InDelta(t, 50, a.PercentageScore, 0.001)
	assert.False(t, a.Passed)

	_, err = e.attempts.Pending(ctx, student, quiz.ID)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)

	pending, err := e.attempts.Pending(ctx, owner, quiz.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.QuestionEssay, pending[0].Question.Type)

	_, err = e.attempts.Grade(ctx, owner, pending[0].Answer.ID, domain.ManualGrade{PointsEarned: 6})
	var verr *domain.ValidationError
	assert.True(t, errors.As(err, &verr), "points above the question's worth are rejected, got %v", err)

	graded, err := e.attempts.Grade(ctx, owner, pending[0].Answer.ID, domain.ManualGrade{PointsEarned: 5, Feedback: "good"})
	require.NoError(t, err)
	assert.Equal(t, 0, graded.PendingGrading)
	assert.Equal(t, 2, graded.CorrectAnswers)
	assert.InDelta(t, 100, graded.PercentageScore, 0.001)
	assert.True(t, graded.Passed)

	pending, err = e.attempts.Pending(ctx, owner, quiz.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRegradeEmailsOnlyWhenScoreMoves(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Essay"},
		singleSelect("2 + 2?", "4", "3"),
		app.QuestionInput{Type: domain.QuestionEssay, Text: "Explain addition.", Points: 5})

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	a, err := e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)
	e.drain()
	require.Len(t, e.mail.results, 1)

	_, err = e.attempts.Recompute(ctx, owner, a.ID)
	require.NoError(t, err)
	e.drain()
	assert.Len(t, e.mail.results, 1, "recompute without a score change stays quiet")

	pending, err := e.attempts.Pending(ctx, owner, quiz.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	_, err = e.attempts.Grade(ctx, owner, pending[0].Answer.ID, domain.ManualGrade{PointsEarned: 5})
	require.NoError(t, err)
	e.drain()
	assert.Len(t, e.mail.results, 2, "a grade that moves the score is announced")

	_, err = e.attempts.Grade(ctx, owner, pending[0].Answer.ID, domain.ManualGrade{PointsEarned: 5, Feedback: "still good"})
	require.NoError(t, err)
	e.drain()
	assert.Len(t, e.mail.results, 2)
}

func TestSetValidityIsAdminOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, owner := e.user("owner", domain.RoleInstructor)
	_, admin := e.user("admin", domain.RoleAdmin)
	_, student := e.user("student", domain.RoleStudent)
	quiz := e.publish(owner, app.QuizInput{Title: "Validity"}, singleSelect("2 + 2?", "4", "3"))

	sheet, err := e.attempts.Start(ctx, student, quiz.ID)
	require.NoError(t, err)
	_, err = e.attempts.Submit(ctx, student, sheet.Attempt.ID, app.SubmitInput{Answers: answers(quiz, sheet, true)})
	require.NoError(t, err)
	e.drain()

	_, err = e.attempts.SetValidity(ctx, owner, sheet.Attempt.ID, false)
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)

	a, err := e.attempts.SetValidity(ctx, admin, sheet.Attempt.ID, false)
	require.NoError(t, err)
	assert.False(t, a.IsValid)

	// the refresh task drops the invalidated attempt from the board
	e.drain()
	board, err := e.leaderboard.Top(ctx, quiz.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, board.Entries)
}
