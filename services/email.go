package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/Dzmitry-Rybak/natours/models"
	"go.uber.org/zap"
)

// Mailer sends the transactional emails of the account flows.
type Mailer interface {
	SendWelcome(ctx context.Context, to *models.User, url string) error
	SendPasswordReset(ctx context.Context, to *models.User, url string) error
}

type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

var htmlTemplate = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="font-family: sans-serif">
<p>Hi {{.FirstName}},</p>
<p>{{.Lead}}</p>
<p><a href="{{.URL}}">{{.Action}}</a></p>
<p>{{.Footer}}</p>
<p>- Natours</p>
</body></html>`))

type emailData struct {
	FirstName, Lead, URL, Action, Footer string
}

func firstName(u *models.User) string {
	name := strings.TrimSpace(u.Name)
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func welcomeEmail(u *models.User, url string) (Email, error) {
	d := emailData{
		FirstName: firstName(u),
		Lead:      "Welcome to Natours, we're glad to have you 🎉",
		URL:       url,
		Action:    "Upload your user photo",
		Footer:    "If you need any help with booking your next tour, please don't hesitate to contact me!",
	}
	return render(u.Email, "Welcome to the Natours Family!", d)
}

func resetEmail(u *models.User, url string) (Email, error) {
	d := emailData{
		FirstName: firstName(u),
		Lead:      "Forgot your password? Submit a PATCH request with your new password and passwordConfirm to the link below.",
		URL:       url,
		Action:    "Reset your password",
		Footer:    "If you didn't forget your password, please ignore this email!",
	}
	return render(u.Email, "Your password reset token (valid for only 10 minutes)", d)
}

func render(to, subject string, d emailData) (Email, error) {
	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, d); err != nil {
		return Email{}, fmt.Errorf("render email: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\n\n%s\n%s: %s\n\n%s\n", d.FirstName, d.Lead, d.Action, d.URL, d.Footer)
	return Email{To: to, Subject: subject, TextBody: text, HTMLBody: html.String()}, nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendWelcome(ctx context.Context, to *models.User, url string) error {
	e, err := welcomeEmail(to, url)
	if err != nil {
		return err
	}
	return m.Send(ctx, e)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to *models.User, url string) error {
	e, err := resetEmail(to, url)
	if err != nil {
		return err
	}
	return m.Send(ctx, e)
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := fmt.Sprintf("From: %s\r\n", m.cfg.From)
	msg += fmt.Sprintf("To: %s\r\n", e.To)
	msg += fmt.Sprintf("Subject: %s\r\n", e.Subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: multipart/alternative; boundary=\"boundary\"\r\n\r\n"
	msg += "--boundary\r\n"
	msg += "Content-Type: text/plain; charset=UTF-8\r\n\r\n"
	msg += e.TextBody + "\r\n"
	msg += "--boundary\r\n"
	msg += "Content-Type: text/html; charset=UTF-8\r\n\r\n"
	msg += e.HTMLBody + "\r\n"
	msg += "--boundary--\r\n"

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, senderAddress(m.cfg.From), []string{e.To}, []byte(msg)); err != nil {
		return fmt.Errorf("send email to %s: %w", e.To, err)
	}
	return nil
}

// senderAddress extracts the bare address from "Name <addr>".
func senderAddress(from string) string {
	if i := strings.LastIndexByte(from, '<'); i >= 0 {
		return strings.TrimSuffix(from[i+1:], ">")
	}
	return from
}

// LogMailer only logs, it is used when no SMTP host is configured.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendWelcome(_ context.Context, to *models.User, url string) error {
	m.log.Info("welcome email", zap.String("to", to.Email), zap.String("url", url))
	return nil
}

func (m *LogMailer) SendPasswordReset(_ context.Context, to *models.User, url string) error {
	m.log.Info("password reset email", zap.String("to", to.Email), zap.String("url", url))
	return nil
}
