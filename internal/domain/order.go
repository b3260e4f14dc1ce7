package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Terminal reports whether no further transition may leave the status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// PaymentMethod selects the reservation window at reserve time.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentAddressPool PaymentMethod = "address-pool"
)

// Order is the aggregate driven by the state machine. Line items are
// snapshots taken at creation time and never edited afterwards;
// quantity corrections go through compensating reserve/release deltas.
type Order struct {
	ID            uint            `gorm:"primaryKey"`
	Code          string          `gorm:"type:char(6);uniqueIndex;not null"`
	BuyerID       int64           `gorm:"index;not null"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BonusApplied  decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(32);not null"`
	Status        OrderStatus     `gorm:"type:varchar(16);index;not null;default:'pending'"`
	ReservedUntil *time.Time      `gorm:"index"`
	// PaymentAddress is the single-use pool address assigned to
	// address-pool orders; nil for cash orders.
	PaymentAddress *string     `gorm:"type:varchar(128)"`
	Items          []OrderItem `gorm:"foreignKey:OrderID"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is an immutable line of an order with the unit price frozen
// at creation time.
type OrderItem struct {
	ID       uint            `gorm:"primaryKey"`
	OrderID  uint            `gorm:"index;not null"`
	ItemName string          `gorm:"type:varchar(128);not null"`
	Price    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Quantity int             `gorm:"not null"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// CanTransition validates a status move. Reserve/expire/deduct paths
// additionally require the order to have been reserved first; that
// guard lives with the services because it needs ReservedUntil.
func (o *Order) CanTransition(to OrderStatus) bool {
	switch to {
	case OrderStatusReserved:
		return o.Status == OrderStatusPending
	case OrderStatusConfirmed:
		return o.Status == OrderStatusReserved
	case OrderStatusDelivered:
		return o.Status == OrderStatusReserved || o.Status == OrderStatusConfirmed
	case OrderStatusExpired:
		return o.Status == OrderStatusReserved
	case OrderStatusCancelled:
		return !o.Status.Terminal()
	}
	return false
}
