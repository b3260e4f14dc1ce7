package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment/internal/domain"
)

func (s *Store) BuyerForUpdate(ctx context.Context, buyerID int64) (*domain.Buyer, error) {
	var buyer domain.Buyer
	err := s.conn(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("buyer_id = ?", buyerID).
		First(&buyer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrBuyerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (s *Store) SaveBuyer(ctx context.Context, buyer *domain.Buyer) error {
	return s.conn(ctx).Save(buyer).Error
}

// EnsureBuyer inserts the buyer row when it does not exist yet.
func (s *Store) EnsureBuyer(ctx context.Context, buyerID int64, username string) error {
	buyer := domain.Buyer{BuyerID: buyerID, Username: username}
	return s.conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "buyer_id"}},
			DoNothing: true,
		}).
		Create(&buyer).Error
}
