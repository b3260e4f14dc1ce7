package domain

import "time"

// AuditType classifies a stock mutation in the audit log.
type AuditType string

const (
	AuditReserve AuditType = "reserve"
	AuditRelease AuditType = "release"
	AuditDeduct  AuditType = "deduct"
	AuditAdd     AuditType = "add"
	AuditManual  AuditType = "manual"
)

// AuditEntry is one append-only row per per-item mutation, written in
// the same transaction as the mutation it documents.
type AuditEntry struct {
	ID             uint      `gorm:"primaryKey"`
	ItemName       string    `gorm:"type:varchar(128);index;not null"`
	ChangeType     AuditType `gorm:"type:varchar(16);not null"`
	QuantityChange int       `gorm:"not null"`
	OrderID        *uint     `gorm:"index"`
	ActorID        *int64
	Comment        string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
