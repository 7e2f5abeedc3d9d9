// Package mailer delivers password-reset codes over SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/interfaces"
)

// SMTPMailer sends OTP emails through an authenticated SMTP relay.
type SMTPMailer struct {
	config *common.SMTPConfig
	logger *common.Logger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer from SMTP configuration.
func NewSMTPMailer(config *common.SMTPConfig, logger *common.Logger) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// SendOTP delivers a password-reset code to the given address.
func (m *SMTPMailer) SendOTP(ctx context.Context, email, code string) error {
	from := m.config.From
	if from == "" {
		from = m.config.Username
	}

	msg := buildOTPMessage(from, email, code)
	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)

	if err := m.send(m.config.Addr(), auth, from, []string{email}, msg); err != nil {
		m.logger.Error().Err(err).Str("to", email).Msg("Failed to send OTP email")
		return fmt.Errorf("failed to send otp email: %w", err)
	}

	m.logger.Info().Str("to", email).Msg("OTP email sent")
	return nil
}

func buildOTPMessage(from, to, code string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Examdesk password reset code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your Examdesk password reset code is: " + code + "\r\n")
	b.WriteString("\r\n")
	b.WriteString("The code expires in 10 minutes. If you did not request a reset, ignore this email.\r\n")
	return []byte(b.String())
}

// Compile-time check
var _ interfaces.Mailer = (*SMTPMailer)(nil)
