package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds delivery settings for a plain SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// AppBaseURL is the frontend origin used to build invite links.
	AppBaseURL string
}

// SMTPSender delivers mail over SMTP with optional auth.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	body := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.cfg.From, msg.To, msg.Subject, msg.HTML,
	)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, []byte(body)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", msg.To, err)
	}
	return nil
}

var inviteTemplate = template.Must(template.New("invite").Parse(`
<div style="font-family: sans-serif; max-width: 480px;">
  <h2>You're invited to {{.BudgetName}}</h2>
  <p>You've been invited to share the budget <strong>{{.BudgetName}}</strong>.</p>
  <p>Create an account with this email address and you'll be added automatically:</p>
  <p><a href="{{.Link}}">{{.Link}}</a></p>
  <p style="color: #888;">This invite expires in 7 days.</p>
</div>
`))

// InviteMessage renders the invitation email for one recipient.
func InviteMessage(baseURL, email, budgetName, token string) (Message, error) {
	var buf bytes.Buffer
	err := inviteTemplate.Execute(&buf, struct {
		BudgetName string
		Link       string
	}{
		BudgetName: budgetName,
		Link:       fmt.Sprintf("%s/register?invite=%s", baseURL, token),
	})
	if err != nil {
		return Message{}, fmt.Errorf("rendering invite email: %w", err)
	}
	return Message{
		To:      email,
		Subject: fmt.Sprintf("You've been invited to %s", budgetName),
		HTML:    buf.String(),
	}, nil
}
