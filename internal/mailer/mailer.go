// Package mailer sends transactional email over SMTP with STARTTLS.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// SMTPMailer sends HTML mail through a single SMTP account.
type SMTPMailer struct {
	host    string
	port    string
	account string
	auth    smtp.Auth
	logger  zerolog.Logger
}

func NewSMTPMailer(host, port, account, password string, logger zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{
		host:    host,
		port:    port,
		account: account,
		auth:    smtp.PlainAuth("", account, password, host),
		logger:  logger,
	}
}

// Send delivers one message. net/smtp has no context support, so ctx only
// gates the attempt, not the dial.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "[SMTPMailer.Send] context")
	}

	message := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		m.account, to, subject, htmlBody)

	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, m.auth, m.account, []string{to}, []byte(message)); err != nil {
		return errors.Wrap(err, "[SMTPMailer.Send] send")
	}
	m.logger.Debug().Str("to", to).Str("subject", subject).Msg("mail sent")
	return nil
}
