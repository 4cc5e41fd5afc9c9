package notify

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

// SMTPConfig configura el envío por SMTP.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender implementa Sender usando SMTP.
type SMTPSender struct {
	cfg    SMTPConfig
	dialer dialer
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // solo dev
	}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return &SMTPSender{cfg: cfg, dialer: d}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	log := logger.From(ctx).With(
		logger.Component("notify.smtp"),
		logger.TenantID(msg.TenantID),
		logger.Identifier(msg.To),
		logger.Purpose(string(msg.Purpose)),
	)

	subject, text, html, err := Render(msg)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	if err := s.dialer.DialAndSend(m); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("otp email sent")
	return nil
}
