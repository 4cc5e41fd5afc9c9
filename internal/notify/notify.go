// Package notify entrega códigos OTP fuera de banda: email por SMTP
// (go-mail) y un sender de consola para sms/whatsapp y desarrollo.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	texttemplate "text/template"
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
)

// Message es una entrega de OTP.
type Message struct {
	TenantID  string
	Channel   domain.OTPChannel
	Purpose   domain.OTPPurpose
	To        string
	Code      string
	ExpiresIn time.Duration
	AppName   string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ErrNoSender indica que no hay sender para el canal pedido.
var ErrNoSender = errors.New("notify: no sender for channel")

// Router despacha por canal.
type Router map[domain.OTPChannel]Sender

func (r Router) Send(ctx context.Context, msg Message) error {
	s, ok := r[msg.Channel]
	if !ok || s == nil {
		return fmt.Errorf("%w %q", ErrNoSender, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// ─── templates ───

var (
	subjectTpl = texttemplate.Must(texttemplate.New("subject").Parse(
		`{{if .AppName}}{{.AppName}}: {{end}}{{if eq .Purpose "login"}}tu código de acceso{{else}}verificá tu cuenta{{end}}`))
	textTpl = texttemplate.Must(texttemplate.New("text").Parse(
		`Tu código es {{.Code}}. Vence en {{.Minutes}} minutos. Si no lo pediste, ignorá este mensaje.`))
	htmlTpl = template.Must(template.New("html").Parse(
		`<p>Tu código es <strong style="font-size:20px;letter-spacing:3px">{{.Code}}</strong>.</p>` +
			`<p>Vence en {{.Minutes}} minutos. Si no lo pediste, ignorá este mensaje.</p>`))
)

type executor interface {
	Execute(w io.Writer, data any) error
	Name() string
}

type view struct {
	Message
	Minutes int
}

// Render arma subject, texto y html de un mensaje OTP.
func Render(msg Message) (subject, text, html string, err error) {
	v := view{Message: msg, Minutes: max(1, int(msg.ExpiresIn.Round(time.Minute)/time.Minute))}
	var b bytes.Buffer
	for _, step := range []struct {
		tpl executor
		dst *string
	}{{subjectTpl, &subject}, {textTpl, &text}, {htmlTpl, &html}} {
		b.Reset()
		if err = step.tpl.Execute(&b, v); err != nil {
			return "", "", "", fmt.Errorf("notify: render %s: %w", step.tpl.Name(), err)
		}
		*step.dst = b.String()
	}
	return subject, text, html, nil
}
