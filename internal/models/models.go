package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ключ тарифа "только аватар": бонусный аватар за первую покупку
// на него не распространяется.
const TariffKeyAvatar = "avatar"

type User struct {
	ID                     int64  `gorm:"primaryKey" json:"id"`
	Username               string `json:"username"`
	FirstName              string `json:"first_name"`
	PhotoCredits           int    `gorm:"default:0" json:"photo_credits"`
	AvatarCredits          int    `gorm:"default:0" json:"avatar_credits"`
	FirstPurchaseCompleted bool   `gorm:"default:false" json:"first_purchase_completed"`
	ReferrerID             *int64 `gorm:"index" json:"referrer_id,omitempty"`
	IsBlocked              bool   `gorm:"default:false" json:"is_blocked"`
	CreatedAt              time.Time
}

// PaymentRecord описывает строку журнала платежей. Создаётся ровно один раз на
// payment_id, никогда не изменяется и не удаляется.
type PaymentRecord struct {
	PaymentID string          `gorm:"primaryKey" json:"payment_id"`
	UserID    int64           `gorm:"index" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Metadata  string          `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time
}

type PaymentStats struct {
	UserID         int64           `gorm:"primaryKey" json:"user_id"`
	TotalPayments  int             `json:"total_payments"`
	TotalAmount    decimal.Decimal `gorm:"type:numeric(14,2)" json:"total_amount"`
	FirstPaymentAt time.Time       `json:"first_payment_at"`
	LastPaymentAt  time.Time       `json:"last_payment_at"`
}

// ReferralRelation создаётся при первом контакте пользователя с ботом.
// Пайплайн платежей её только читает для восстановления users.referrer_id.
type ReferralRelation struct {
	ReferredUserID int64 `gorm:"primaryKey" json:"referred_user_id"`
	ReferrerID     int64 `gorm:"index" json:"referrer_id"`
	CreatedAt      time.Time
}

type Tariff struct {
	Key     string          `json:"key"`
	Amount  decimal.Decimal `json:"amount"`
	Photos  int             `json:"photos"`
	Avatars int             `json:"avatars"`
	Display string          `json:"display"`
}

// PaymentEvent содержит нормализованное событие payment.succeeded,
// уже извлечённое из вебхука.
type PaymentEvent struct {
	PaymentID   string
	UserID      int64
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]string
}

type CreditResult struct {
	PhotoDelta      int  `json:"photo_delta"`
	AvatarDelta     int  `json:"avatar_delta"`
	BonusAvatar     bool `json:"bonus_avatar"`
	IsFirstPurchase bool `json:"is_first_purchase"`
	// Количество платежей до текущего, для номера платежа в отчёте.
	PriorPayments int64 `json:"prior_payments"`
}

// PaymentReport собирает данные для уведомлений пользователю и операторам
// после успешного начисления.
type PaymentReport struct {
	PaymentID  string
	User       *User
	Tariff     *Tariff
	Amount     decimal.Decimal
	Result     *CreditResult
	ReferrerID *int64
}
