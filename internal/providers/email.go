package providers

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/smtp"
	"net/textproto"

	"sos-service/internal/notify"
)

// SMTPConfig holds the relay credentials used for direct sends.
type SMTPConfig struct {
	Server   string
	Port     int
	Username string
	Password string
	FromName string
	From     string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends multipart (text + html) mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send sendFunc
}

var _ notify.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Server == "" || cfg.Port == 0 || cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("missing Email configuration: SMTPServer, SMTPPort, Username, or Password is empty")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid email address %q: %w", msg.To, err)
	}

	raw, err := m.compose(to, msg)
	if err != nil {
		return err
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)
	addr := fmt.Sprintf("%s:%d", m.cfg.Server, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.From, []string{to.Address}, raw); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to.Address, err)
	}
	return nil
}

func (m *SMTPMailer) compose(to *mail.Address, msg notify.Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("failed to create mime part: %w", err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mime body: %w", err)
	}

	from := mail.Address{Name: m.cfg.FromName, Address: m.cfg.From}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from.String())
	fmt.Fprintf(&out, "To: %s\r\n", to.String())
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
