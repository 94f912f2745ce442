package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
)

// Mailer delivers password reset links. Implementations receive the
// plaintext token and must not log or persist it.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, token string) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends HTML mail through an authenticated SMTP relay.
type SMTPMailer struct {
	cfg      config.MailConfig
	resetURL string
	send     sendFunc
}

func NewSMTPMailer(cfg config.MailConfig, resetURL string) *SMTPMailer {
	return &SMTPMailer{
		cfg:      cfg,
		resetURL: resetURL,
		send:     smtp.SendMail,
	}
}

// New picks the SMTP mailer when credentials are configured and the log
// mailer otherwise.
func New(cfg config.MailConfig, resetURL string) Mailer {
	if cfg.MailEnabled() {
		return NewSMTPMailer(cfg, resetURL)
	}
	logger.Warn("SMTP credentials not configured, reset mails will only be logged", nil)
	return &LogMailer{}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := ResetLink(m.resetURL, token)
	if err != nil {
		return err
	}

	subject := "[CCS Membership] Reset your password"
	body := fmt.Sprintf(`
<html>
<body style="font-family: Arial, sans-serif; padding: 20px; background-color: #f5f5f5;">
	<div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 40px; border-radius: 10px;">
		<h1 style="color: #333; margin-bottom: 20px;">Password reset</h1>
		<p style="color: #666; line-height: 1.6;">Hi %s,</p>
		<p style="color: #666; line-height: 1.6; margin-bottom: 30px;">
			We received a request to reset the password of your CCS membership account.
			The link below is valid for a limited time and can be used once.
		</p>
		<p style="text-align: center; margin-bottom: 30px;">
			<a href="%s" style="background-color: #1a56db; color: white; padding: 12px 24px; border-radius: 6px; text-decoration: none;">Reset password</a>
		</p>
		<p style="color: #999; font-size: 14px;">
			If you did not request this, you can ignore this email.
		</p>
	</div>
</body>
</html>
`, htmlEscape(name), link)

	message := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		m.cfg.From, to, subject, body,
	))

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := m.send(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.From, []string{to}, message); err != nil {
		logger.Error("Failed to send password reset email", err, map[string]interface{}{
			"to": to,
		})
		return fmt.Errorf("send password reset email: %w", err)
	}

	logger.Info("Password reset email sent", map[string]interface{}{
		"to": to,
	})
	return nil
}

// LogMailer is the development fallback. It records that a mail would have
// been sent, never the token itself.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	logger.Info("Password reset email not sent (SMTP disabled)", map[string]interface{}{
		"to": to,
	})
	return nil
}

// ResetLink appends token as the "token" query parameter of base.
func ResetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
