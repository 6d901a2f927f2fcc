package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/axidi/photoai-bot/internal/models"
)

// UpsertPaymentStats обновляет агрегат платежей в той же транзакции, что и
// начисление: first_payment_at выставляется один раз, остальное инкрементно.
func (r *Repository) UpsertPaymentStats(ctx context.Context, userID int64, amount decimal.Decimal, tx *gorm.DB) error {
	now := time.Now().UTC()
	stats := models.PaymentStats{
		UserID:         userID,
		TotalPayments:  1,
		TotalAmount:    amount,
		FirstPaymentAt: now,
		LastPaymentAt:  now,
	}

	err := r.orDB(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_payments":  gorm.Expr("payment_stats.total_payments + 1"),
				"total_amount":    gorm.Expr("payment_stats.total_amount + ?", amount),
				"last_payment_at": now,
			}),
		}).
		Create(&stats).Error
	if err != nil {
		return fmt.Errorf("failed to upsert payment stats for user %d: %w", userID, err)
	}
	return nil
}
