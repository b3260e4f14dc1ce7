package inventory

import (
	"context"
	"time"

	"fulfillment/internal/domain"
)

// Store is the persistence port for the reservation engine. WithTx runs
// fn inside a transaction; when the context already carries one, fn
// joins it instead of opening a nested transaction. That is what lets
// callers compose engine operations with their own writes in one
// commit.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	OrderForUpdate(ctx context.Context, orderID uint) (*domain.Order, error)
	ItemForUpdate(ctx context.Context, name string) (*domain.Item, error)
	Item(ctx context.Context, name string) (*domain.Item, error)
	SaveItem(ctx context.Context, item *domain.Item) error

	SetOrderReservation(ctx context.Context, orderID uint, status domain.OrderStatus, reservedUntil time.Time) error
	ClearOrderDeadline(ctx context.Context, orderID uint) error

	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
}

// Settings reads runtime-tunable values.
type Settings interface {
	Int(ctx context.Context, key string, fallback int) int
}

// CacheInvalidator evicts derived availability figures after a stock
// mutation. Best-effort; implementations log failures and never return
// them.
type CacheInvalidator interface {
	InvalidateItem(ctx context.Context, name string)
}

// EventSink receives one event per stock mutation for external
// audit/metrics consumers. Best-effort; must not block the caller.
type EventSink interface {
	Publish(ctx context.Context, event StockEvent)
}

// StockEvent mirrors an audit entry for asynchronous consumers.
type StockEvent struct {
	Type      domain.AuditType `json:"type"`
	ItemName  string           `json:"item_name"`
	Quantity  int              `json:"quantity"`
	OrderCode string           `json:"order_code,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}
