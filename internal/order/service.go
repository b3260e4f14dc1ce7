package order

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fulfillment/internal/clock"
	"fulfillment/internal/domain"
	"fulfillment/internal/inventory"
	"fulfillment/internal/ordercode"
)

var tracer = otel.Tracer("order-service")

// ErrInsufficientBonus rejects a checkout applying more bonus than the
// buyer's balance holds.
var ErrInsufficientBonus = errors.New("bonus applied exceeds bonus balance")

// Service owns order status and drives the reservation engine. Every
// transition runs in one transaction with the stock mutations it
// implies.
type Service struct {
	store     Store
	engine    Engine
	allocator Allocator
	notifier  Notifier
	clock     clock.Clock
	log       zerolog.Logger
}

func NewService(store Store, engine Engine, allocator Allocator, notifier Notifier, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		engine:    engine,
		allocator: allocator,
		notifier:  notifier,
		clock:     clk,
		log:       log.With().Str("component", "order").Logger(),
	}
}

// CheckoutInput describes a purchase attempt for a set of items.
type CheckoutInput struct {
	BuyerID  int64
	Username string
	Lines    []inventory.Line
	Method   domain.PaymentMethod
	Bonus    decimal.Decimal
}

// Checkout creates the order, reserves every line and, for address-pool
// orders, assigns a payment address, all in one transaction. The order
// comes back in reserved state with its deadline stamped.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "order.Checkout")
	defer span.End()
	span.SetAttributes(attribute.Int64("buyer.id", in.BuyerID), attribute.Int("lines", len(in.Lines)))

	if len(in.Lines) == 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var created *domain.Order
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.EnsureBuyer(ctx, in.BuyerID, in.Username); err != nil {
			return err
		}

		total := decimal.Zero
		orderItems := make([]domain.OrderItem, 0, len(in.Lines))
		for _, line := range in.Lines {
			if line.Quantity <= 0 {
				return domain.ErrInvalidQuantity
			}
			item, err := s.store.Item(ctx, line.ItemName)
			if err != nil {
				return errors.Wrapf(err, "item %q", line.ItemName)
			}
			orderItems = append(orderItems, domain.OrderItem{
				ItemName: item.Name,
				Price:    item.Price,
				Quantity: line.Quantity,
			})
			total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}

		if in.Bonus.IsPositive() {
			buyer, err := s.store.BuyerForUpdate(ctx, in.BuyerID)
			if err != nil {
				return err
			}
			if in.Bonus.GreaterThan(buyer.BonusBalance) {
				return ErrInsufficientBonus
			}
			buyer.BonusBalance = buyer.BonusBalance.Sub(in.Bonus)
			if err := s.store.SaveBuyer(ctx, buyer); err != nil {
				return err
			}
		}

		code, err := ordercode.NewUnique(ctx, s.store.CodeExists)
		if err != nil {
			return err
		}

		order := &domain.Order{
			Code:          code,
			BuyerID:       in.BuyerID,
			TotalPrice:    total,
			BonusApplied:  in.Bonus,
			PaymentMethod: in.Method,
			Status:        domain.OrderStatusPending,
			Items:         orderItems,
			CreatedAt:     s.clock.Now(),
		}
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return err
		}

		if err := s.engine.Reserve(ctx, order.ID, in.Lines, in.Method); err != nil {
			return err
		}

		if in.Method == domain.PaymentAddressPool {
			address, err := s.allocator.Allocate(ctx, in.BuyerID, order.ID)
			if err != nil {
				return err
			}
			order.PaymentAddress = &address
			if err := s.store.SetOrderPaymentAddress(ctx, order.ID, address); err != nil {
				return err
			}
		}

		created = order
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Reload the post-reserve state (status, deadline). The order is
	// already committed at this point; a failed reload must surface
	// rather than hand back the stale pending snapshot.
	fresh, err := s.store.OrderByCode(ctx, created.Code)
	if err != nil {
		return nil, errors.Wrapf(err, "order %s created but reload failed", created.Code)
	}
	return fresh, nil
}

// Confirm moves a reserved order to confirmed. It does not touch stock;
// the deduction happens at delivery.
func (s *Service) Confirm(ctx context.Context, code string, actorID int64) error {
	ctx, span := tracer.Start(ctx, "order.Confirm")
	defer span.End()

	var buyerID int64
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.store.OrderByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}
		if !order.CanTransition(domain.OrderStatusConfirmed) {
			return domain.ErrInvalidTransition
		}
		buyerID = order.BuyerID
		return s.store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusConfirmed)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.notify(ctx, buyerID, fmt.Sprintf("Your order %s has been confirmed.", code))
	s.log.Info().Str("code", code).Int64("actor_id", actorID).Msg("order confirmed")
	return nil
}

// Deliver deducts the order's stock and marks it delivered in one
// commit, then adds the total to the buyer's cumulative spend.
func (s *Service) Deliver(ctx context.Context, code string, actorID int64) error {
	ctx, span := tracer.Start(ctx, "order.Deliver")
	defer span.End()

	var buyerID int64
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.store.OrderByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}
		if !order.CanTransition(domain.OrderStatusDelivered) {
			return domain.ErrInvalidTransition
		}

		if err := s.engine.Deduct(ctx, order.ID, actorID); err != nil {
			return err
		}
		if err := s.store.MarkOrderCompleted(ctx, order.ID, domain.OrderStatusDelivered, s.clock.Now()); err != nil {
			return err
		}

		if err := s.store.EnsureBuyer(ctx, order.BuyerID, ""); err != nil {
			return err
		}
		buyer, err := s.store.BuyerForUpdate(ctx, order.BuyerID)
		if err != nil {
			return err
		}
		buyer.TotalSpent = buyer.TotalSpent.Add(order.TotalPrice)
		if err := s.store.SaveBuyer(ctx, buyer); err != nil {
			return err
		}

		buyerID = order.BuyerID
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.notify(ctx, buyerID, fmt.Sprintf("Your order %s has been delivered.", code))
	s.log.Info().Str("code", code).Int64("actor_id", actorID).Msg("order delivered")
	return nil
}

// Cancel releases any held stock, refunds applied bonus and marks the
// order cancelled.
func (s *Service) Cancel(ctx context.Context, code, reason string, actorID int64) error {
	ctx, span := tracer.Start(ctx, "order.Cancel")
	defer span.End()

	var buyerID int64
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := s.store.OrderByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if order.Status.Terminal() {
			return domain.ErrOrderTerminal
		}

		// Only reserved/confirmed orders actually hold stock.
		if order.Status != domain.OrderStatusPending {
			if err := s.engine.Release(ctx, order.ID, reason); err != nil {
				return err
			}
		}

		if order.BonusApplied.IsPositive() {
			if err := s.refundBonus(ctx, order); err != nil {
				return err
			}
		}

		buyerID = order.BuyerID
		return s.store.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusCancelled)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	s.notify(ctx, buyerID, fmt.Sprintf("Your order %s has been cancelled: %s", code, reason))
	s.log.Info().Str("code", code).Str("reason", reason).Int64("actor_id", actorID).Msg("order cancelled")
	return nil
}

// Get returns the order by its human-facing code.
func (s *Service) Get(ctx context.Context, code string) (*domain.Order, error) {
	return s.store.OrderByCode(ctx, code)
}

func (s *Service) refundBonus(ctx context.Context, order *domain.Order) error {
	if err := s.store.EnsureBuyer(ctx, order.BuyerID, ""); err != nil {
		return err
	}
	buyer, err := s.store.BuyerForUpdate(ctx, order.BuyerID)
	if err != nil {
		return err
	}
	buyer.BonusBalance = buyer.BonusBalance.Add(order.BonusApplied)
	return s.store.SaveBuyer(ctx, buyer)
}

func (s *Service) notify(ctx context.Context, buyerID int64, text string) {
	if !s.notifier.Notify(ctx, buyerID, text) {
		s.log.Warn().Int64("buyer_id", buyerID).Msg("notification delivery failed")
	}
}
