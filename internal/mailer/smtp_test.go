package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examdesk/examdesk/internal/common"
)

func testMailer() *SMTPMailer {
	config := &common.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "noreply@examdesk.app",
		Password: "secret",
	}
	return NewSMTPMailer(config, common.NewSilentLogger())
}

func TestSendOTP(t *testing.T) {
	m := testMailer()

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.SendOTP(context.Background(), "student@example.com", "123456")
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@examdesk.app", gotFrom) // From falls back to Username
	assert.Equal(t, []string{"student@example.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "123456")
	assert.Contains(t, string(gotMsg), "Subject: Examdesk password reset code")
}

func TestSendOTPFailure(t *testing.T) {
	m := testMailer()
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	err := m.SendOTP(context.Background(), "student@example.com", "123456")
	assert.Error(t, err)
}
