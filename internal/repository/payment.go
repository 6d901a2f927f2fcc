package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/axidi/photoai-bot/internal/models"
)

func (r *Repository) PaymentExists(ctx context.Context, paymentID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("payment_id = ?", paymentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check payment %s: %w", paymentID, err)
	}
	return count > 0, nil
}

// CountUserPayments считает платежи пользователя в журнале, исключая
// текущий payment_id. Именно этот счётчик решает, первая ли это покупка.
func (r *Repository) CountUserPayments(ctx context.Context, userID int64, excludePaymentID string, tx *gorm.DB) (int64, error) {
	var count int64
	err := r.orDB(tx).WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("user_id = ? AND payment_id <> ?", userID, excludePaymentID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count payments for user %d: %w", userID, err)
	}
	return count, nil
}

// CreatePaymentRecord вставляет строку журнала под uniqueness-констрейнтом
// на payment_id. Возвращает false, если строку уже вставила гонка-дубликат.
func (r *Repository) CreatePaymentRecord(ctx context.Context, rec *models.PaymentRecord, tx *gorm.DB) (bool, error) {
	res := r.orDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create payment record %s: %w", rec.PaymentID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
