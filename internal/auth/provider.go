package auth

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dropDatabas3/authcore/internal/domain"
)

// ErrUnknownProvider se devuelve para ids no registrados.
var ErrUnknownProvider = errors.New("auth: unknown provider")

// Credentials es el input de un provider. Cada provider usa lo suyo:
// email_password usa Identifier/Password, OAuth usa Code.
type Credentials struct {
	TenantID   string
	Identifier string // email o username
	Password   string
	Name       string
	Username   string
	Code       string // authorization code (OAuth)
}

// Provider autentica credenciales contra el adapter del tenant.
type Provider interface {
	ID() string
	SignIn(ctx context.Context, creds Credentials) (*domain.User, error)
}

// SignUpProvider además sabe dar de alta usuarios.
type SignUpProvider interface {
	Provider
	SignUp(ctx context.Context, creds Credentials) (*domain.User, error)
}

// OAuthProvider arma la URL de consentimiento; SignIn recibe el code.
type OAuthProvider interface {
	Provider
	AuthURL(ctx context.Context, tenantID, state string) (string, error)
}

// Registry mapea id → Provider. Se llena al arrancar.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register agrega o reemplaza un provider.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// IDs devuelve los ids registrados, ordenados.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
