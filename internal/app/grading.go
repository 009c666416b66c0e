package app

import (
	"math"
	"strings"
	"time"

	"quiz-platform/internal/domain"
)

// GradeAnswer scores a submission against its question.
func GradeAnswer(q domain.Question, sub domain.AnswerSubmission) domain.AnswerResult {
	points := q.Worth()

	switch q.Type {
	case domain.QuestionSingleSelect:
		chosen := sub.OptionIDs
		if len(chosen) == 0 && strings.TrimSpace(sub.Text) != "" {
			// older clients submit the option text instead of its ID
			if opt, ok := optionByText(q, sub.Text); ok {
				chosen = []int64{opt.ID}
			}
		}
		if len(chosen) != 1 {
			return domain.AnswerResult{}
		}
		for _, o := range q.Options {
			if o.ID == chosen[0] && o.IsCorrect {
				return domain.AnswerResult{IsCorrect: true, PointsEarned: points}
			}
		}
		return domain.AnswerResult{}

	case domain.QuestionMultiSelect:
		correct := make(map[int64]bool)
		for _, o := range q.Options {
			if o.IsCorrect {
				correct[o.ID] = true
			}
		}
		if len(correct) == 0 {
			return domain.AnswerResult{}
		}
		hits := 0
		for id := range uniqueIDs(sub.OptionIDs) {
			if !correct[id] {
				return domain.AnswerResult{}
			}
			hits++
		}
		if hits == len(correct) {
			return domain.AnswerResult{IsCorrect: true, PointsEarned: points}
		}
		return domain.AnswerResult{PointsEarned: points * hits / len(correct)}

	case domain.QuestionFreeText:
		given := strings.TrimSpace(sub.Text)
		if given == "" {
			return domain.AnswerResult{}
		}
		for _, o := range q.Options {
			if o.IsCorrect && strings.EqualFold(strings.TrimSpace(o.Text), given) {
				return domain.AnswerResult{IsCorrect: true, PointsEarned: points}
			}
		}
		return domain.AnswerResult{}

	default: // essay, file upload
		return domain.AnswerResult{IsManuallyGraded: true}
	}
}

// Aggregate re-derives every score field of a from the current answers.
// It never accumulates, so calling it again after a manual grade is safe.
func Aggregate(a *domain.Attempt, quiz domain.Quiz, answers []domain.Answer, now time.Time) {
	total := len(a.QuestionIDs)

	seen := make(map[int64]bool, len(answers))
	var answered, correct, graded, pending, earned int
	for _, ans := range answers {
		if !a.Includes(ans.QuestionID) || seen[ans.QuestionID] {
			continue
		}
		seen[ans.QuestionID] = true
		answered++
		earned += ans.PointsEarned
		if ans.AwaitingGrade() {
			pending++
			continue
		}
		graded++
		if ans.IsCorrect {
			correct++
		}
	}

	possible := 0
	for _, id := range a.QuestionIDs {
		if q, ok := quiz.Question(id); ok {
			possible += q.Worth()
		}
	}

	a.TotalQuestions = total
	a.CorrectAnswers = correct
	a.IncorrectAnswers = graded - correct
	a.UnansweredQuestions = total - answered
	a.PendingGrading = pending
	a.PointsEarned = earned
	a.PointsPossible = possible
	a.PercentageScore = 0
	if total > 0 {
		a.PercentageScore = math.Round(float64(correct)/float64(total)*100*100) / 100
	}
	a.Passed = total > 0 && a.PercentageScore >= quiz.PassingScore
	a.Status = domain.AttemptCompleted
	if a.SubmittedAt == nil {
		a.SubmittedAt = ptrTime(now)
	}
	a.DurationSeconds = int(a.SubmittedAt.Sub(a.StartedAt).Seconds())
	if a.DurationSeconds < 0 {
		a.DurationSeconds = 0
	}
}

func optionByText(q domain.Question, text string) (domain.Option, bool) {
	text = strings.TrimSpace(text)
	for _, o := range q.Options {
		if strings.TrimSpace(o.Text) == text {
			return o, true
		}
	}
	return domain.Option{}, false
}

func uniqueIDs(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
