package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// DefaultSubmitGrace is how long past the time limit a submission still counts as valid.
const DefaultSubmitGrace = 30 * time.Second

// QuestionSheet is what a quiz taker sees: the quiz header and the selected questions.
type QuestionSheet struct {
	QuizID    int64            `json:"quiz_id"`
	Title     string           `json:"title"`
	TimeLimit int              `json:"time_limit"`
	Attempt   *domain.Attempt  `json:"attempt,omitempty"`
	Questions []PublicQuestion `json:"questions"`
}

// SubmitInput carries the answers of one submission.
type SubmitInput struct {
	Answers []domain.AnswerSubmission `json:"answers" validate:"dive"`
}

// AttemptService runs the attempt lifecycle: selection, grading, aggregation and regrading.
type AttemptService struct {
	attempts AttemptRepository
	quizzes  QuizSource
	selector *Selector
	queue    TaskQueue
	grace    time.Duration
	now      func() time.Time
	log      Logger
}

func NewAttemptService(attempts AttemptRepository, quizzes QuizSource, selector *Selector, queue TaskQueue, grace time.Duration, log Logger) *AttemptService {
	if grace < 0 {
		grace = DefaultSubmitGrace
	}
	return &AttemptService{
		attempts: attempts,
		quizzes:  quizzes,
		selector: selector,
		queue:    queue,
		grace:    grace,
		now:      time.Now,
		log:      orNop(log),
	}
}

// Questions returns the caller's deterministic selection for a quiz. While an attempt is
// open its snapshot wins, so later catalog edits do not change what the caller answers.
func (s *AttemptService) Questions(ctx context.Context, actor Actor, quizID int64) (QuestionSheet, error) {
	quiz, err := s.visibleQuiz(ctx, actor, quizID)
	if err != nil {
		return QuestionSheet{}, err
	}
	attempt, err := s.attempts.InProgressAttempt(ctx, actor.UserID, quizID)
	switch {
	case err == nil:
		return sheet(quiz, s.attemptQuestions(quiz, attempt), &attempt), nil
	case !errors.Is(err, domain.ErrAttemptNotFound):
		return QuestionSheet{}, errors.Wrap(err, "find open attempt")
	}
	return sheet(quiz, s.selector.Select(quiz, actor.UserID), nil), nil
}

// Start opens an attempt, or resumes the caller's open one.
func (s *AttemptService) Start(ctx context.Context, actor Actor, quizID int64) (QuestionSheet, error) {
	quiz, err := s.visibleQuiz(ctx, actor, quizID)
	if err != nil {
		return QuestionSheet{}, err
	}
	attempt, err := s.open(ctx, actor, quiz)
	if err != nil {
		return QuestionSheet{}, err
	}
	return sheet(quiz, s.attemptQuestions(quiz, attempt), &attempt), nil
}

// Submit grades and completes an attempt. A second submission of the same attempt
// fails with domain.ErrAttemptSubmitted.
func (s *AttemptService) Submit(ctx context.Context, actor Actor, attemptID int64, in SubmitInput) (domain.Attempt, error) {
	current, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if current.UserID != actor.UserID {
		return domain.Attempt{}, domain.ErrForbidden
	}
	if current.Completed() {
		return domain.Attempt{}, domain.ErrAttemptSubmitted
	}
	if err := checkSelection(current, in.Answers); err != nil {
		return domain.Attempt{}, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}

	now := s.now()
	attempt, err := s.attempts.UpdateAttempt(ctx, attemptID, func(a *domain.Attempt) ([]domain.Answer, error) {
		if a.Completed() {
			return nil, domain.ErrAttemptSubmitted
		}
		changed, all := gradeSubmissions(*a, quiz, in.Answers, now)
		Aggregate(a, quiz, all, now)
		if quiz.TimeLimit > 0 {
			deadline := a.StartedAt.Add(time.Duration(quiz.TimeLimit)*time.Second + s.grace)
			if now.After(deadline) {
				a.IsValid = false
			}
		}
		a.Answers = all
		return changed, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.completed(ctx, attempt)
	return attempt, nil
}

// SubmitQuiz starts (or resumes) an attempt and submits it in one call.
func (s *AttemptService) SubmitQuiz(ctx context.Context, actor Actor, quizID int64, in SubmitInput) (domain.Attempt, error) {
	quiz, err := s.visibleQuiz(ctx, actor, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	attempt, err := s.open(ctx, actor, quiz)
	if err != nil {
		return domain.Attempt{}, err
	}
	return s.Submit(ctx, actor, attempt.ID, in)
}

// Get returns an attempt to its owner or to staff.
func (s *AttemptService) Get(ctx context.Context, actor Actor, attemptID int64) (domain.Attempt, error) {
	a, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !actor.CanRead(a.UserID) {
		return domain.Attempt{}, domain.ErrForbidden
	}
	return a, nil
}

// Review breaks a completed attempt down per question. Correct options are shown
// when the quiz allows it or the caller is staff.
func (s *AttemptService) Review(ctx context.Context, actor Actor, attemptID int64) (domain.AttemptReview, error) {
	a, err := s.Get(ctx, actor, attemptID)
	if err != nil {
		return domain.AttemptReview{}, err
	}
	if !a.Completed() {
		return domain.AttemptReview{}, domain.ErrAttemptInProgress
	}
	quiz, err := s.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return domain.AttemptReview{}, err
	}
	reveal := quiz.ShowAnswers || actor.IsStaff()

	answers := make(map[int64]domain.Answer, len(a.Answers))
	for _, ans := range a.Answers {
		answers[ans.QuestionID] = ans
	}

	review := domain.AttemptReview{
		Attempt: a,
		Quiz:    domain.QuizSummary{ID: quiz.ID, Title: quiz.Title, PassingScore: quiz.PassingScore},
		Items:   make([]domain.ReviewItem, 0, len(a.QuestionIDs)),
	}
	review.Attempt.Answers = nil
	for _, id := range a.QuestionIDs {
		q, ok := quiz.Question(id)
		if !ok {
			continue
		}
		item := domain.ReviewItem{Question: q}
		if reveal {
			item.CorrectOptions = q.CorrectOptions()
		} else {
			item.Question = hideKeys(q)
		}
		if ans, ok := answers[id]; ok {
			ans := ans
			item.Answer = &ans
		}
		review.Items = append(review.Items, item)
	}
	return review, nil
}

// Mine lists the caller's attempts, newest first.
func (s *AttemptService) Mine(ctx context.Context, actor Actor, f domain.AttemptFilter) ([]domain.Attempt, domain.Meta, error) {
	f.UserID = actor.UserID
	return s.list(ctx, f)
}

// ForQuiz lists attempts on a quiz the caller manages.
func (s *AttemptService) ForQuiz(ctx context.Context, actor Actor, quizID int64, f domain.AttemptFilter) ([]domain.Attempt, domain.Meta, error) {
	if _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
		return nil, domain.Meta{}, err
	}
	f.QuizID = quizID
	return s.list(ctx, f)
}

// All lists every attempt; admin only.
func (s *AttemptService) All(ctx context.Context, actor Actor, f domain.AttemptFilter) ([]domain.Attempt, domain.Meta, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, domain.Meta{}, err
	}
	return s.list(ctx, f)
}

// Pending lists answers awaiting manual grading. Instructors see their own quizzes.
func (s *AttemptService) Pending(ctx context.Context, actor Actor, quizID int64) ([]domain.PendingAnswer, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if quizID > 0 {
		if _, err := s.managedQuiz(ctx, actor, quizID); err != nil {
			return nil, err
		}
	}
	var createdBy int64
	if !actor.IsAdmin() {
		createdBy = actor.UserID
	}
	pending, err := s.attempts.PendingAnswers(ctx, quizID, createdBy)
	return pending, errors.Wrap(err, "list pending answers")
}

// Grade applies an instructor's score to one answer and recomputes its attempt.
func (s *AttemptService) Grade(ctx context.Context, actor Actor, answerID int64, g domain.ManualGrade) (domain.Attempt, error) {
	ans, err := s.attempts.AnswerByID(ctx, answerID)
	if err != nil {
		return domain.Attempt{}, err
	}
	current, err := s.attempts.AttemptByID(ctx, ans.AttemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.managedQuiz(ctx, actor, current.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	q, ok := quiz.Question(ans.QuestionID)
	if !ok {
		return domain.Attempt{}, domain.ErrQuestionNotFound
	}
	if g.PointsEarned < 0 || g.PointsEarned > q.Worth() {
		return domain.Attempt{}, domain.FieldValidationError("points_earned", fmt.Sprintf("points must be between 0 and %d", q.Worth()))
	}
	correct := g.PointsEarned == q.Worth()
	if g.IsCorrect != nil {
		correct = *g.IsCorrect
	}

	now := s.now()
	var previous float64
	attempt, err := s.attempts.UpdateAttempt(ctx, current.ID, func(a *domain.Attempt) ([]domain.Answer, error) {
		if !a.Completed() {
			return nil, domain.ErrAttemptInProgress
		}
		previous = a.PercentageScore
		var graded *domain.Answer
		for i := range a.Answers {
			if a.Answers[i].ID == answerID {
				graded = &a.Answers[i]
				break
			}
		}
		if graded == nil {
			return nil, domain.ErrAnswerNotFound
		}
		graded.PointsEarned = g.PointsEarned
		graded.IsCorrect = correct
		graded.Feedback = g.Feedback
		graded.IsManuallyGraded = true
		graded.GradedBy = ptrInt64(actor.UserID)
		graded.GradedAt = ptrTime(now)

		Aggregate(a, quiz, a.Answers, now)
		return []domain.Answer{*graded}, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}

	s.regraded(ctx, attempt, previous)
	return attempt, nil
}

// Recompute re-derives an attempt's aggregates from its stored answers.
func (s *AttemptService) Recompute(ctx context.Context, actor Actor, attemptID int64) (domain.Attempt, error) {
	current, err := s.attempts.AttemptByID(ctx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.managedQuiz(ctx, actor, current.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	var previous float64
	attempt, err := s.attempts.UpdateAttempt(ctx, attemptID, func(a *domain.Attempt) ([]domain.Answer, error) {
		if !a.Completed() {
			return nil, domain.ErrAttemptInProgress
		}
		previous = a.PercentageScore
		Aggregate(a, quiz, a.Answers, s.now())
		return nil, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	s.regraded(ctx, attempt, previous)
	return attempt, nil
}

// SetValidity lets an admin invalidate or revalidate an attempt.
func (s *AttemptService) SetValidity(ctx context.Context, actor Actor, attemptID int64, valid bool) (domain.Attempt, error) {
	if err := requireAdmin(actor); err != nil {
		return domain.Attempt{}, err
	}
	return s.setValidity(ctx, attemptID, valid)
}

// Invalidate marks an attempt invalid on behalf of another service, such as proctoring.
func (s *AttemptService) Invalidate(ctx context.Context, attemptID int64) error {
	_, err := s.setValidity(ctx, attemptID, false)
	return err
}

func (s *AttemptService) setValidity(ctx context.Context, attemptID int64, valid bool) (domain.Attempt, error) {
	attempt, err := s.attempts.UpdateAttempt(ctx, attemptID, func(a *domain.Attempt) ([]domain.Answer, error) {
		a.IsValid = valid
		return nil, nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.Completed() {
		s.enqueue(ctx, domain.Task{Kind: domain.TaskLeaderboardRefresh, QuizID: attempt.QuizID})
	}
	return attempt, nil
}

// open resumes the caller's in-progress attempt or creates a new one.
func (s *AttemptService) open(ctx context.Context, actor Actor, quiz domain.Quiz) (domain.Attempt, error) {
	attempt, err := s.attempts.InProgressAttempt(ctx, actor.UserID, quiz.ID)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, errors.Wrap(err, "find open attempt")
	}

	if quiz.MaxAttempts > 0 {
		done, err := s.attempts.CountCompleted(ctx, actor.UserID, quiz.ID)
		if err != nil {
			return domain.Attempt{}, errors.Wrap(err, "count attempts")
		}
		if done >= quiz.MaxAttempts {
			return domain.Attempt{}, domain.ErrMaxAttemptsReached
		}
	}

	ids := QuestionIDs(s.selector.Select(quiz, actor.UserID))
	attempt = domain.Attempt{
		UserID:         actor.UserID,
		QuizID:         quiz.ID,
		Status:         domain.AttemptInProgress,
		QuestionIDs:    ids,
		TotalQuestions: len(ids),
		IsValid:        true,
		StartedAt:      s.now(),
	}
	err = s.attempts.CreateAttempt(ctx, &attempt)
	if errors.Is(err, domain.ErrAttemptInProgress) {
		// lost a race with a concurrent start
		return s.attempts.InProgressAttempt(ctx, actor.UserID, quiz.ID)
	}
	if err != nil {
		return domain.Attempt{}, errors.Wrap(err, "create attempt")
	}
	return attempt, nil
}

// attemptQuestions returns the snapshotted questions of a, in snapshot order,
// with the same option order the selector produced.
func (s *AttemptService) attemptQuestions(quiz domain.Quiz, a domain.Attempt) []domain.Question {
	selected := make(map[int64]domain.Question)
	for _, q := range s.selector.Select(quiz, a.UserID) {
		selected[q.ID] = q
	}
	out := make([]domain.Question, 0, len(a.QuestionIDs))
	for _, id := range a.QuestionIDs {
		if q, ok := selected[id]; ok {
			out = append(out, q)
		} else if q, ok := quiz.Question(id); ok {
			out = append(out, q)
		}
	}
	return out
}

func (s *AttemptService) visibleQuiz(ctx context.Context, actor Actor, quizID int64) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !quiz.IsPublished && !actor.CanManage(quiz.CreatedBy) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *AttemptService) managedQuiz(ctx context.Context, actor Actor, quizID int64) (domain.Quiz, error) {
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

func (s *AttemptService) list(ctx context.Context, f domain.AttemptFilter) ([]domain.Attempt, domain.Meta, error) {
	f.Page = f.Page.Normalize()
	attempts, total, err := s.attempts.ListAttempts(ctx, f)
	if err != nil {
		return nil, domain.Meta{}, errors.Wrap(err, "list attempts")
	}
	return attempts, domain.BuildMeta(f.Page, total), nil
}

func (s *AttemptService) completed(ctx context.Context, a domain.Attempt) {
	s.enqueue(ctx, domain.Task{Kind: domain.TaskAttemptCompleted, AttemptID: a.ID, QuizID: a.QuizID, UserID: a.UserID})
}

func (s *AttemptService) regraded(ctx context.Context, a domain.Attempt, previous float64) {
	s.enqueue(ctx, domain.Task{
		Kind:          domain.TaskAttemptCompleted,
		AttemptID:     a.ID,
		QuizID:        a.QuizID,
		UserID:        a.UserID,
		Regrade:       true,
		PreviousScore: previous,
	})
}

func (s *AttemptService) enqueue(ctx context.Context, task domain.Task) {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.log.Error("enqueue task", "kind", task.Kind, "attempt", task.AttemptID, "err", err)
	}
}

// checkSelection rejects answers to questions outside the attempt's selection.
func checkSelection(a domain.Attempt, subs []domain.AnswerSubmission) error {
	var fields domain.Fields
	for i, sub := range subs {
		if !a.Includes(sub.QuestionID) {
			fields.Add(fmt.Sprintf("answers[%d].question_id", i), "question is not part of this attempt")
		}
	}
	return fields.Err()
}

// gradeSubmissions grades subs against quiz and merges them into a's stored answers.
// It returns the answers to persist and the full answer set in selection order.
func gradeSubmissions(a domain.Attempt, quiz domain.Quiz, subs []domain.AnswerSubmission, now time.Time) ([]domain.Answer, []domain.Answer) {
	byQuestion := make(map[int64]domain.Answer, len(a.Answers))
	for _, ans := range a.Answers {
		byQuestion[ans.QuestionID] = ans
	}

	// the last submission for a question wins
	latest := make(map[int64]domain.AnswerSubmission, len(subs))
	for _, sub := range subs {
		latest[sub.QuestionID] = sub
	}

	var changed []domain.Answer
	for _, id := range a.QuestionIDs {
		sub, ok := latest[id]
		if !ok || sub.Empty() {
			continue
		}
		q, ok := quiz.Question(id)
		if !ok {
			continue
		}
		res := GradeAnswer(q, sub)

		ans := byQuestion[id]
		ans.AttemptID = a.ID
		ans.QuestionID = id
		ans.SelectedOptionIDs = sortedIDs(sub.OptionIDs)
		ans.TextAnswer = sub.Text
		ans.FileURL = sub.FileURL
		ans.IsCorrect = res.IsCorrect
		ans.PointsEarned = res.PointsEarned
		ans.IsManuallyGraded = res.IsManuallyGraded
		ans.GradedBy = nil
		ans.GradedAt = nil
		if ans.CreatedAt.IsZero() {
			ans.CreatedAt = now
		}
		byQuestion[id] = ans
		changed = append(changed, ans)
	}

	all := make([]domain.Answer, 0, len(byQuestion))
	for _, id := range a.QuestionIDs {
		if ans, ok := byQuestion[id]; ok {
			all = append(all, ans)
		}
	}
	return changed, all
}

func sortedIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for id := range uniqueIDs(ids) {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sheet(quiz domain.Quiz, questions []domain.Question, attempt *domain.Attempt) QuestionSheet {
	return QuestionSheet{
		QuizID:    quiz.ID,
		Title:     quiz.Title,
		TimeLimit: quiz.TimeLimit,
		Attempt:   attempt,
		Questions: Publicize(questions),
	}
}

// hideKeys strips correctness flags, and free-text accepted answers, from q.
func hideKeys(q domain.Question) domain.Question {
	if q.Type == domain.QuestionFreeText {
		q.Options = nil
		return q
	}
	opts := make([]domain.Option, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		opts[i] = o
	}
	q.Options = opts
	return q
}
