// Package sweeper reclaims reservations whose deadline has passed.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fulfillment/internal/clock"
	"fulfillment/internal/domain"
)

// Store is the persistence port for the sweeper.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	DueOrders(ctx context.Context, now time.Time) ([]domain.Order, error)
	OrderForUpdate(ctx context.Context, orderID uint) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, status domain.OrderStatus) error
	EnsureBuyer(ctx context.Context, buyerID int64, username string) error
	BuyerForUpdate(ctx context.Context, buyerID int64) (*domain.Buyer, error)
	SaveBuyer(ctx context.Context, buyer *domain.Buyer) error
}

// Engine is the slice of the reservation engine the sweeper needs.
type Engine interface {
	Release(ctx context.Context, orderID uint, reason string) error
}

// Notifier delivers a best-effort message to a buyer.
type Notifier interface {
	Notify(ctx context.Context, buyerID int64, text string) bool
}

const releaseReason = "reservation timeout expired"

// Sweeper scans for timed-out holds on a fixed interval. Every due
// order is handled in its own transaction, so one failure neither
// aborts the sweep nor leaves partial state; unprocessed orders are
// simply due again next cycle. An errored cycle doubles the wait before
// the next one.
type Sweeper struct {
	store    Store
	engine   Engine
	notifier Notifier
	clock    clock.Clock
	interval time.Duration
	expired  prometheus.Counter
	log      zerolog.Logger
}

func New(store Store, engine Engine, notifier Notifier, clk clock.Clock, interval time.Duration, reg prometheus.Registerer, log zerolog.Logger) *Sweeper {
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_expired_orders_total",
		Help: "Orders expired by the reservation sweeper.",
	})
	reg.MustRegister(expired)

	return &Sweeper{
		store:    store,
		engine:   engine,
		notifier: notifier,
		clock:    clk,
		interval: interval,
		expired:  expired,
		log:      log.With().Str("component", "sweeper").Logger(),
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.interval).Msg("reservation sweeper started")

	wait := s.interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reservation sweeper stopped")
			return ctx.Err()
		case <-timer.C:
		}

		count, err := s.Sweep(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("sweep cycle failed")
			wait = 2 * s.interval
		} else {
			if count > 0 {
				s.log.Info().Int("count", count).Msg("released expired reservations")
			}
			wait = s.interval
		}
		timer.Reset(wait)
	}
}

// Sweep runs one cycle and returns how many orders were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.DueOrders(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, order := range due {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		expired, err := s.expireOne(ctx, order.ID)
		if err != nil {
			s.log.Error().Err(err).Str("code", order.Code).Msg("failed to expire order")
			continue
		}
		if !expired {
			continue
		}
		count++
		s.expired.Inc()
	}
	return count, nil
}

// expireOne releases and expires a single order in its own transaction,
// reporting whether it actually did. The order is re-locked and
// re-checked: another worker or an admin may have acted on it since the
// scan.
func (s *Sweeper) expireOne(ctx context.Context, orderID uint) (bool, error) {
	var buyerID int64
	var code string
	var refunded *domain.Order

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.store.OrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusReserved {
			return nil
		}
		if order.ReservedUntil == nil || !order.ReservedUntil.Before(s.clock.Now()) {
			return nil
		}

		if err := s.engine.Release(ctx, order.ID, releaseReason); err != nil {
			return err
		}
		if err := s.store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusExpired); err != nil {
			return err
		}

		if order.BonusApplied.IsPositive() {
			if err := s.store.EnsureBuyer(ctx, order.BuyerID, ""); err != nil {
				return err
			}
			buyer, err := s.store.BuyerForUpdate(ctx, order.BuyerID)
			if err != nil {
				return err
			}
			buyer.BonusBalance = buyer.BonusBalance.Add(order.BonusApplied)
			if err := s.store.SaveBuyer(ctx, buyer); err != nil {
				return err
			}
			refunded = order
		}

		buyerID = order.BuyerID
		code = order.Code
		return nil
	})
	if err != nil {
		return false, err
	}
	if code == "" {
		return false, nil
	}

	text := fmt.Sprintf("Your order %s has expired due to payment timeout.", code)
	if refunded != nil {
		text += fmt.Sprintf(" Bonus refund: %s has been returned to your balance.", refunded.BonusApplied.StringFixed(2))
	}
	if !s.notifier.Notify(ctx, buyerID, text) {
		s.log.Warn().Str("code", code).Msg("expiry notification delivery failed")
	}

	s.log.Info().Str("code", code).Msg("reservation expired")
	return true, nil
}
