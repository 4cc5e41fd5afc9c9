package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Console escribe el OTP en w (stdout por defecto). Pensado para
// desarrollo y para canales sin proveedor configurado (sms/whatsapp).
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

func (c *Console) Send(_ context.Context, msg Message) error {
	_, text, _, err := Render(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintf(c.w, "[otp] tenant=%s channel=%s to=%s purpose=%s: %s\n",
		msg.TenantID, msg.Channel, msg.To, msg.Purpose, text)
	return err
}
