package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/domain"
)

// ClaimUnused locks one unused address row. SKIP LOCKED keeps
// concurrent claimers from queueing on the same row; each one locks a
// different address or sees the pool as exhausted.
func (s *Store) ClaimUnused(ctx context.Context) (*domain.PoolAddress, error) {
	var addr domain.PoolAddress
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("is_used = ?", false).
		Order("id").
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPoolExhausted
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *Store) AddressForUpdate(ctx context.Context, address string) (*domain.PoolAddress, error) {
	var addr domain.PoolAddress
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", address).
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *Store) SaveAddress(ctx context.Context, addr *domain.PoolAddress) error {
	return s.conn(ctx).Save(addr).Error
}

// InsertAddress adds a new unused address, reporting whether a row was
// actually created. Existing addresses are skipped, never reset.
func (s *Store) InsertAddress(ctx context.Context, address string) (bool, error) {
	addr := domain.PoolAddress{Address: address}
	res := s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoNothing: true,
		}).
		Create(&addr)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) PoolStats(ctx context.Context) (domain.PoolStats, error) {
	var total, used int64
	if err := s.conn(ctx).Model(&domain.PoolAddress{}).Count(&total).Error; err != nil {
		return domain.PoolStats{}, err
	}
	if err := s.conn(ctx).Model(&domain.PoolAddress{}).Where("is_used = ?", true).Count(&used).Error; err != nil {
		return domain.PoolStats{}, err
	}
	return domain.PoolStats{
		Total:     int(total),
		Used:      int(used),
		Available: int(total - used),
	}, nil
}
