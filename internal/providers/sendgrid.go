package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"sos-service/internal/notify"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridMailer sends through the SendGrid v3 mail API.
type SendGridMailer struct {
	key  string
	host string
	from *sgmail.Email
}

var _ notify.Mailer = (*SendGridMailer)(nil)

func NewSendGridMailer(key, fromName, fromEmail string) (*SendGridMailer, error) {
	if key == "" {
		return nil, fmt.Errorf("missing SENDGRID_API_KEY")
	}
	if fromEmail == "" {
		return nil, fmt.Errorf("missing sender address for sendgrid")
	}
	return &SendGridMailer{
		key:  key,
		host: sendgridHost,
		from: sgmail.NewEmail(fromName, fromEmail),
	}, nil
}

func (s *SendGridMailer) prepare(msg notify.Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

func (s *SendGridMailer) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
