package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/domain"
)

func (s *Store) OrderForUpdate(ctx context.Context, orderID uint) (*domain.Order, error) {
	var order domain.Order
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Items").
		First(&order, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ItemForUpdate(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", name).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) Item(ctx context.Context, name string) (*domain.Item, error) {
	var item domain.Item
	err := s.conn(ctx).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveItem(ctx context.Context, item *domain.Item) error {
	return s.conn(ctx).Save(item).Error
}

func (s *Store) SetOrderReservation(ctx context.Context, orderID uint, status domain.OrderStatus, reservedUntil time.Time) error {
	return s.conn(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":         status,
			"reserved_until": reservedUntil,
		}).Error
}

func (s *Store) ClearOrderDeadline(ctx context.Context, orderID uint) error {
	return s.conn(ctx).Model(&domain.Order{}).
		Where("id = ?", orderID).
		Update("reserved_until", nil).Error
}

func (s *Store) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	return s.conn(ctx).Create(entry).Error
}
