package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/axidi/photoai-bot/internal/models"
)

func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// AddUserCredits атомарно увеличивает счётчики на уровне строки, без
// read-modify-write: параллельные платежи одного пользователя не теряются.
func (r *Repository) AddUserCredits(ctx context.Context, userID int64, photos, avatars int, tx *gorm.DB) error {
	res := r.orDB(tx).WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"photo_credits":  gorm.Expr("photo_credits + ?", photos),
			"avatar_credits": gorm.Expr("avatar_credits + ?", avatars),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to add credits for user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetFirstPurchaseCompleted взводит флаг первой покупки. Флаг монотонный:
// обратно в false здесь не переводится никогда.
func (r *Repository) SetFirstPurchaseCompleted(ctx context.Context, userID int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("first_purchase_completed", true)
	if res.Error != nil {
		return fmt.Errorf("failed to set first_purchase_completed for user %d: %w", userID, res.Error)
	}
	return nil
}

func (r *Repository) SetUserReferrer(ctx context.Context, userID, referrerID int64) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("referrer_id", referrerID).Error
}

func (r *Repository) GetReferralRelation(ctx context.Context, userID int64) (*models.ReferralRelation, error) {
	var rel models.ReferralRelation
	err := r.db.WithContext(ctx).First(&rel, "referred_user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get referral relation for user %d: %w", userID, err)
	}
	return &rel, nil
}
