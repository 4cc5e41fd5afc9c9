package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
)

type fakeDialer struct {
	sent []*mail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*mail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func msg() Message {
	return Message{
		TenantID:  "acme",
		Channel:   domain.ChannelEmail,
		Purpose:   domain.PurposeLogin,
		To:        "ana@acme.com",
		Code:      "042917",
		ExpiresIn: 5 * time.Minute,
		AppName:   "Acme",
	}
}

func TestRender(t *testing.T) {
	subject, text, html, err := Render(msg())
	require.NoError(t, err)
	assert.Equal(t, "Acme: tu código de acceso", subject)
	assert.Contains(t, text, "042917")
	assert.Contains(t, text, "5 minutos")
	assert.Contains(t, html, "<strong")

	m := msg()
	m.Purpose, m.AppName, m.ExpiresIn = domain.PurposeVerification, "", 20*time.Second
	subject, text, _, err = Render(m)
	require.NoError(t, err)
	assert.Equal(t, "verificá tu cuenta", subject)
	assert.Contains(t, text, "1 minutos")
}

func TestSMTPSender(t *testing.T) {
	d := &fakeDialer{}
	s := NewSMTPSender(SMTPConfig{Host: "smtp.local", Port: 25, From: "no-reply@acme.com"})
	s.dialer = d

	require.NoError(t, s.Send(context.Background(), msg()))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"ana@acme.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"no-reply@acme.com"}, d.sent[0].GetHeader("From"))

	d.err = errors.New("connection refused")
	err := s.Send(context.Background(), msg())
	assert.ErrorContains(t, err, "smtp send")
}

func TestRouter(t *testing.T) {
	var buf bytes.Buffer
	r := Router{domain.ChannelSMS: NewConsole(&buf)}

	m := msg()
	m.Channel, m.To = domain.ChannelSMS, "+5491100000000"
	require.NoError(t, r.Send(context.Background(), m))
	assert.Contains(t, buf.String(), "042917")
	assert.Contains(t, buf.String(), "channel=sms")

	m.Channel = domain.ChannelWhatsApp
	assert.ErrorIs(t, r.Send(context.Background(), m), ErrNoSender)
}
