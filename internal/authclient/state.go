package authclient

import (
	"sync"

	"github.com/dropDatabas3/authcore/internal/http/dto"
)

// Snapshot es la foto del usuario actual. Es una copia: modificarla no
// afecta al State.
type Snapshot struct {
	Token string
	User  *dto.UserSummary
}

// Authenticated indica si hay sesión cacheada.
func (s Snapshot) Authenticated() bool { return s.Token != "" && s.User != nil }

// State es el cache local del usuario actual. No es fuente de verdad: el
// server decide; State solo evita pedir /me en cada render. Cada Client
// tiene el suyo, así que varios tenants conviven en el mismo proceso.
type State struct {
	mu      sync.Mutex
	cur     Snapshot
	nextID  int
	subs    map[int]func(Snapshot)
	version uint64
}

func NewState() *State {
	return &State{subs: map[int]func(Snapshot){}}
}

// Current devuelve la foto actual.
func (s *State) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.cur)
}

// Subscribe registra fn; se llama (fuera del lock) en cada cambio. La
// función devuelta da de baja la suscripción y es idempotente.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Set reemplaza la sesión cacheada y notifica.
func (s *State) Set(token string, u dto.UserSummary) {
	s.update(Snapshot{Token: token, User: &u})
}

// Clear invalida el cache (logout, 401). No notifica si ya estaba vacío.
func (s *State) Clear() {
	s.mu.Lock()
	empty := s.cur.Token == "" && s.cur.User == nil
	s.mu.Unlock()
	if empty {
		return
	}
	s.update(Snapshot{})
}

func (s *State) update(next Snapshot) {
	s.mu.Lock()
	s.cur = next
	s.version++
	v := s.version
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		// si otro update ganó mientras notificábamos, los suscriptores ya
		// van a recibir el valor más nuevo
		if s.stale(v) {
			return
		}
		fn(copySnapshot(next))
	}
}

func (s *State) stale(v uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != v
}

func copySnapshot(s Snapshot) Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
