package mysql

import (
	"context"
	"errors"
	"time"

	sqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/domain"
)

// MySQL error 1062: duplicate entry for a unique key.
const dupEntry = 1062

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) error {
	err := s.conn(ctx).Create(order).Error
	var mysqlErr *sqlmysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == dupEntry {
		// The uniqueness pre-check raced with a concurrent checkout.
		return domain.ErrCodeTaken
	}
	return err
}

func (s *Store) OrderByCode(ctx context.Context, code string) (*domain.Order, error) {
	var order domain.Order
	err := s.conn(ctx).Preload("Items").Where("code = ?", code).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) OrderByCodeForUpdate(ctx context.Context, code string) (*domain.Order, error) {
	var order domain.Order
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		Where("code = ?", code).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uint, status domain.OrderStatus) error {
	return s.conn(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

func (s *Store) MarkOrderCompleted(ctx context.Context, orderID uint, status domain.OrderStatus, at time.Time) error {
	return s.conn(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":       status,
			"completed_at": at,
		}).Error
}

func (s *Store) SetOrderPaymentAddress(ctx context.Context, orderID uint, address string) error {
	return s.conn(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("payment_address", address).Error
}

func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(&domain.Order{}).Where("code = ?", code).Count(&count).Error
	return count > 0, err
}

// DueOrders lists reserved orders whose deadline has passed. Each one
// is reloaded under lock by the sweeper before it is touched.
func (s *Store) DueOrders(ctx context.Context, now time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.conn(ctx).
		Preload("Items").
		Where("status = ? AND reserved_until IS NOT NULL AND reserved_until < ?", domain.OrderStatusReserved, now).
		Find(&orders).Error
	return orders, err
}
