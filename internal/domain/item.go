package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable position in the stock ledger. StockQuantity counts
// units on hand; ReservedQuantity counts units held for pending orders.
// Both columns are mutated only inside a row-locked transaction owned by
// the reservation engine.
type Item struct {
	ID               uint            `gorm:"primaryKey"`
	Name             string          `gorm:"type:varchar(128);uniqueIndex;not null"`
	Price            decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	StockQuantity    int             `gorm:"not null;default:0"`
	ReservedQuantity int             `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (Item) TableName() string {
	return "items"
}

// Available is the quantity a new reservation may take, floored at zero
// so transient reservation slack never surfaces as a negative number.
func (i *Item) Available() int {
	available := i.StockQuantity - i.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}
