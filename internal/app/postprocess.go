package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// PostProcessor runs the background work that follows completed attempts and courses.
// Every step is safe to repeat: tasks are delivered at least once.
type PostProcessor struct {
	attempts    AttemptRepository
	users       UserRepository
	quizzes     QuizSource
	leaderboard *LeaderboardService
	analytics   *AnalyticsService
	certs       *CertificateService
	mail        Notifier
	log         Logger
}

func NewPostProcessor(attempts AttemptRepository, users UserRepository, quizzes QuizSource, leaderboard *LeaderboardService, analytics *AnalyticsService, certs *CertificateService, mail Notifier, log Logger) *PostProcessor {
	return &PostProcessor{
		attempts:    attempts,
		users:       users,
		quizzes:     quizzes,
		leaderboard: leaderboard,
		analytics:   analytics,
		certs:       certs,
		mail:        mail,
		log:         orNop(log),
	}
}

// Handle dispatches one task.
func (p *PostProcessor) Handle(ctx context.Context, task domain.Task) error {
	switch task.Kind {
	case domain.TaskAttemptCompleted:
		return p.attemptCompleted(ctx, task)
	case domain.TaskLeaderboardRefresh:
		_, err := p.leaderboard.Rebuild(ctx, task.QuizID)
		return err
	case domain.TaskCourseCompleted:
		_, _, err := p.certs.IssueForCourse(ctx, task.UserID, task.CourseID)
		if errors.Is(err, domain.ErrCourseIncomplete) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (p *PostProcessor) attemptCompleted(ctx context.Context, task domain.Task) error {
	a, err := p.attempts.AttemptByID(ctx, task.AttemptID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		p.log.Warn("completed attempt vanished", "attempt", task.AttemptID)
		return nil
	}
	if err != nil {
		return err
	}
	if !a.Completed() {
		return nil
	}

	if _, err := p.leaderboard.Rebuild(ctx, a.QuizID); err != nil {
		return errors.Wrap(err, "rebuild leaderboard")
	}

	if a.Passed && a.IsValid {
		if _, _, err := p.certs.IssueForAttempt(ctx, a.ID); err != nil && !errors.Is(err, domain.ErrNotPassed) {
			return errors.Wrap(err, "issue certificate")
		}
	}

	if err := p.analytics.RecordCompletion(ctx, a); err != nil {
		return err
	}

	// a regrade only re-sends the result when the score moved
	if !task.Regrade || task.PreviousScore != a.PercentageScore {
		p.sendResult(ctx, a)
	}
	return nil
}

func (p *PostProcessor) sendResult(ctx context.Context, a domain.Attempt) {
	u, err := p.users.UserByID(ctx, a.UserID)
	if err != nil {
		p.log.Warn("result email: load user", "attempt", a.ID, "err", err)
		return
	}
	quiz, err := p.quizzes.GetQuiz(ctx, a.QuizID)
	if err != nil {
		p.log.Warn("result email: load quiz", "attempt", a.ID, "err", err)
		return
	}
	if err := p.mail.QuizResultEmail(ctx, u, quiz, a); err != nil {
		p.log.Error("send result email", "attempt", a.ID, "err", err)
	}
}
