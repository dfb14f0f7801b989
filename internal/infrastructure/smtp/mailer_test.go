package smtp

import (
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/go-accounts-nosql/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailer(send sendFunc) *mailer {
	m := NewMailer(&config.Config{SMTPHost: "mail.local", SMTPPort: "2525", SMTPFrom: "noreply@example.com"}).(*mailer)
	m.send = send
	m.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestSendEmail(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := newTestMailer(func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.Nil(t, a)
		return nil
	})

	require.NoError(t, m.SendEmail("a@b.com", "Activate your account", "line one\nline two"))

	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"a@b.com"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Activate your account\r\n")
	assert.Contains(t, string(gotMsg), "Date: Sat, 01 Mar 2025 12:00:00 +0000\r\n")
	assert.Contains(t, string(gotMsg), "\r\n\r\nline one\r\nline two")
}

func TestSendEmail_RejectsHeaderInjection(t *testing.T) {
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	})

	assert.Error(t, m.SendEmail("a@b.com\r\nBcc: x@y.com", "s", "b"))
}

func TestSendEmail_WrapsTransportError(t *testing.T) {
	boom := errors.New("connection refused")
	m := newTestMailer(func(string, smtp.Auth, string, []string, []byte) error { return boom })

	err := m.SendEmail("a@b.com", "s", "b")
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "mail.local:2525")
}
