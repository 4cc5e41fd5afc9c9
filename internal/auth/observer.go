package auth

import "github.com/dropDatabas3/authcore/internal/store"

// Observer recibe los eventos de negocio que se exportan como métricas.
// Outcome es "success" o el código de error.
type Observer interface {
	AuthAttempt(method, outcome string)
	OTPIssued(channel string)
	OTPVerified(outcome string)
	Swept(stats store.PurgeStats)
}

type nopObserver struct{}

func (nopObserver) AuthAttempt(string, string) {}
func (nopObserver) OTPIssued(string)           {}
func (nopObserver) OTPVerified(string)         {}
func (nopObserver) Swept(store.PurgeStats)     {}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(CodeOf(err))
}
