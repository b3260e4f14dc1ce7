package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Buyer tracks cumulative spend and the refundable bonus balance.
type Buyer struct {
	ID           uint            `gorm:"primaryKey"`
	BuyerID      int64           `gorm:"uniqueIndex;not null"`
	Username     string          `gorm:"type:varchar(128)"`
	TotalSpent   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	BonusBalance decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Buyer) TableName() string {
	return "buyers"
}

// Setting is a runtime-tunable key/value pair, e.g. the cash order
// reservation timeout in hours.
type Setting struct {
	Key       string `gorm:"primaryKey;type:varchar(64)"`
	Value     string `gorm:"type:varchar(255);not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string {
	return "settings"
}

// SettingCashTimeoutHours is the admin-tunable reservation window for
// cash orders, in hours.
const SettingCashTimeoutHours = "cash_order_timeout_hours"
