package domain

import "time"

// PoolAddress is a single-use payment address drawn from a finite
// replenishable set. It transitions unused -> used exactly once and is
// never reused or deleted.
type PoolAddress struct {
	ID        uint   `gorm:"primaryKey"`
	Address   string `gorm:"type:varchar(128);uniqueIndex;not null"`
	IsUsed    bool   `gorm:"index;not null;default:false"`
	UsedBy    *int64
	UsedAt    *time.Time
	OrderID   *uint
	CreatedAt time.Time
}

func (PoolAddress) TableName() string {
	return "pool_addresses"
}

// PoolStats is a point-in-time summary of the address pool.
type PoolStats struct {
	Total     int
	Used      int
	Available int
}
