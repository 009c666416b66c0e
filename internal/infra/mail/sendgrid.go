package mail

import (
	"context"
	"fmt"
	"net/http"
	netmail "net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridSender delivers messages through the SendGrid v3 API.
type SendgridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

var _ Sender = (*SendgridSender)(nil)

func NewSendgridSender(key, appName string, from netmail.Address) *SendgridSender {
	return &SendgridSender{
		key:        key,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: "[" + appName + "] ",
	}
}

func (s *SendgridSender) prepare(m Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + m.Subject
	p.AddTos(sgmail.NewEmail(m.To.Name, m.To.Address))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(s.from)
	v3.AddPersonalizations(p)
	if m.TextContent != "" {
		v3.AddContent(sgmail.NewContent("text/plain", m.TextContent))
	}
	if m.HTMLContent != "" {
		v3.AddContent(sgmail.NewContent("text/html", m.HTMLContent))
	}
	return v3
}

func (s *SendgridSender) Send(_ context.Context, m Message) error {
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(m))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
