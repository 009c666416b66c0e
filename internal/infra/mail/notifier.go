package mail

import (
	"context"
	netmail "net/mail"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Config holds the values every email needs.
type Config struct {
	AppName         string
	FrontendBaseURL string
}

// Notifier builds the transactional emails and hands them to a Sender.
type Notifier struct {
	sender Sender
	tmpl   *templates
	conf   Config
}

var _ app.Notifier = (*Notifier)(nil)

func NewNotifier(sender Sender, conf Config) (*Notifier, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Notifier{sender: sender, tmpl: tmpl, conf: conf}, nil
}

type tokenData struct {
	Name  string
	Token string
}

func (n *Notifier) VerificationEmail(ctx context.Context, u domain.User, token string) error {
	return n.send(ctx, u, "Confirm your email", "verify_email", tokenData{Name: u.DisplayName(), Token: token})
}

func (n *Notifier) PasswordResetEmail(ctx context.Context, u domain.User, token string) error {
	return n.send(ctx, u, "Reset your password", "password_reset", tokenData{Name: u.DisplayName(), Token: token})
}

type resultData struct {
	Name         string
	QuizTitle    string
	AttemptID    int64
	Score        float64
	PassingScore float64
	Correct      int
	Total        int
	Pending      int
	Passed       bool
}

func (n *Notifier) QuizResultEmail(ctx context.Context, u domain.User, quiz domain.Quiz, a domain.Attempt) error {
	data := resultData{
		Name:         u.DisplayName(),
		QuizTitle:    quiz.Title,
		AttemptID:    a.ID,
		Score:        a.PercentageScore,
		PassingScore: quiz.PassingScore,
		Correct:      a.CorrectAnswers,
		Total:        a.TotalQuestions,
		Pending:      a.PendingGrading,
		Passed:       a.Passed,
	}
	return n.send(ctx, u, "Your result for "+quiz.Title, "quiz_result", data)
}

type certificateData struct {
	Name    string
	Title   string
	Number  string
	FileURL string
}

func (n *Notifier) CertificateEmail(ctx context.Context, u domain.User, c domain.Certificate) error {
	data := certificateData{
		Name:    u.DisplayName(),
		Title:   c.Data.Title,
		Number:  c.Number,
		FileURL: c.FileURL,
	}
	return n.send(ctx, u, "Your certificate for "+c.Data.Title, "certificate", data)
}

func (n *Notifier) send(ctx context.Context, u domain.User, subject, template string, data interface{}) error {
	m := Message{
		To:       netmail.Address{Name: u.DisplayName(), Address: u.Email},
		Subject:  subject,
		Template: template,
		Data:     data,
	}
	if err := n.tmpl.render(&m, templateData{AppName: n.conf.AppName, FrontendBaseURL: n.conf.FrontendBaseURL}); err != nil {
		return err
	}
	return n.sender.Send(ctx, m)
}
