package order

import (
	"context"
	"time"

	"fulfillment/internal/domain"
	"fulfillment/internal/inventory"
)

// Store is the persistence port for the order state machine. WithTx has
// the same join-the-ambient-transaction contract as the inventory
// store; both are implemented by the same mysql store so a service
// operation and the engine mutations it triggers share one commit.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateOrder(ctx context.Context, order *domain.Order) error
	OrderByCode(ctx context.Context, code string) (*domain.Order, error)
	OrderByCodeForUpdate(ctx context.Context, code string) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uint, status domain.OrderStatus) error
	MarkOrderCompleted(ctx context.Context, orderID uint, status domain.OrderStatus, at time.Time) error
	SetOrderPaymentAddress(ctx context.Context, orderID uint, address string) error
	CodeExists(ctx context.Context, code string) (bool, error)

	Item(ctx context.Context, name string) (*domain.Item, error)

	EnsureBuyer(ctx context.Context, buyerID int64, username string) error
	BuyerForUpdate(ctx context.Context, buyerID int64) (*domain.Buyer, error)
	SaveBuyer(ctx context.Context, buyer *domain.Buyer) error
}

// Engine is the slice of the reservation engine the state machine
// drives.
type Engine interface {
	Reserve(ctx context.Context, orderID uint, lines []inventory.Line, method domain.PaymentMethod) error
	Release(ctx context.Context, orderID uint, reason string) error
	Deduct(ctx context.Context, orderID uint, actorID int64) error
}

// Allocator hands out a single-use payment address.
type Allocator interface {
	Allocate(ctx context.Context, buyerID int64, orderID uint) (string, error)
}

// Notifier delivers a best-effort message to a buyer.
type Notifier interface {
	Notify(ctx context.Context, buyerID int64, text string) bool
}
