package auth

import (
	"context"
	"time"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/store"
)

// DefaultSweepInterval entre barridos.
const DefaultSweepInterval = 5 * time.Minute

// AdapterSet recorre los adapters abiertos (store.Manager).
type AdapterSet interface {
	Each(fn func(key string, a store.Adapter) error) error
}

// Sweeper borra periódicamente sesiones y OTPs vencidos. Es solo
// housekeeping: la expiración ya se aplica al leer.
type Sweeper struct {
	stores   AdapterSet
	interval time.Duration
	obs      Observer
	now      Clock
}

type SweeperOption func(*Sweeper)

func WithSweepClock(c Clock) SweeperOption {
	return func(s *Sweeper) { s.now = c }
}

func NewSweeper(stores AdapterSet, interval time.Duration, obs Observer, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if obs == nil {
		obs = nopObserver{}
	}
	s := &Sweeper{stores: stores, interval: interval, obs: obs, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SweepOnce barre todos los adapters. Un adapter con error no corta el
// barrido de los demás.
func (s *Sweeper) SweepOnce(ctx context.Context) (store.PurgeStats, error) {
	var total store.PurgeStats
	now := s.now()
	err := s.stores.Each(func(key string, a store.Adapter) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := a.PurgeExpired(ctx, now)
		if err != nil {
			logger.From(ctx).Warn("sweep failed", logger.String("store", key), logger.Err(err))
			return err
		}
		total.Sessions += st.Sessions
		total.OTPs += st.OTPs
		return nil
	})
	s.obs.Swept(total)
	return total, err
}

// Run barre cada interval hasta que ctx se cancela.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.From(ctx).With(logger.Component("sweeper"))
	t := time.NewTicker(s.interval)
	defer t.Stop()
	log.Info("sweeper started", logger.Duration(s.interval))
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-t.C:
			st, err := s.SweepOnce(ctx)
			if err != nil && ctx.Err() == nil {
				log.Warn("sweep finished with errors", logger.Err(err))
			}
			if st.Sessions > 0 || st.OTPs > 0 {
				log.Info("expired records purged", logger.Int("sessions", st.Sessions), logger.Int("otps", st.OTPs))
			}
		}
	}
}
