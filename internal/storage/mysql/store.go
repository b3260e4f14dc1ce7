// Package mysql implements the persistence ports on gorm with
// pessimistic row locking. Transactions travel in the context: WithTx
// opens one unless the context already carries it, so service-level
// operations compose into a single commit.
package mysql

import (
	"context"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fulfillment/internal/domain"
)

type txKey struct{}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Open connects to MySQL and configures the underlying pool.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return NewStore(db), nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Item{},
		&domain.Order{},
		&domain.OrderItem{},
		&domain.AuditEntry{},
		&domain.PoolAddress{},
		&domain.Buyer{},
		&domain.Setting{},
	)
}

// WithTx runs fn inside a transaction. A context that already carries a
// transaction joins it; rollback then remains the outermost caller's
// decision.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// conn returns the ambient transaction when present, the root handle
// otherwise.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
