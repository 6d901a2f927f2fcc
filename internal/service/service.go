package service

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/axidi/photoai-bot/config"
	"github.com/axidi/photoai-bot/internal/models"
	"github.com/axidi/photoai-bot/utils"
)

type Repository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	AddUserCredits(ctx context.Context, userID int64, photos, avatars int, tx *gorm.DB) error
	SetFirstPurchaseCompleted(ctx context.Context, userID int64) error
	SetUserReferrer(ctx context.Context, userID, referrerID int64) error
	GetReferralRelation(ctx context.Context, userID int64) (*models.ReferralRelation, error)

	PaymentExists(ctx context.Context, paymentID string) (bool, error)
	CountUserPayments(ctx context.Context, userID int64, excludePaymentID string, tx *gorm.DB) (int64, error)
	CreatePaymentRecord(ctx context.Context, rec *models.PaymentRecord, tx *gorm.DB) (bool, error)
	UpsertPaymentStats(ctx context.Context, userID int64, amount decimal.Decimal, tx *gorm.DB) error

	BeginTransaction(ctx context.Context) (*gorm.DB, error)
	Commit(tx *gorm.DB) error
	Rollback(tx *gorm.DB)
}

type Notifier interface {
	PaymentSuccess(ctx context.Context, rep *models.PaymentReport)
	PaymentFailed(ctx context.Context, userID int64)
	OperatorWarning(ctx context.Context, text string)
	Critical(ctx context.Context, text string)
}

type Cache interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

type Service struct {
	repo     Repository
	catalog  *config.Catalog
	notifier Notifier
	cache    Cache
	logger   *utils.Logger
}

func NewService(repo Repository, catalog *config.Catalog, notifier Notifier, cache Cache, logger *utils.Logger) *Service {
	return &Service{
		repo:     repo,
		catalog:  catalog,
		notifier: notifier,
		cache:    cache,
		logger:   logger,
	}
}
