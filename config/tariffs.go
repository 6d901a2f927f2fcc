package config

import (
	"github.com/shopspring/decimal"

	"github.com/axidi/photoai-bot/internal/models"
)

// Абсолютный допуск при сопоставлении суммы платежа с тарифом: провайдер
// может округлять копейки.
var amountTolerance = decimal.NewFromFloat(0.01)

// Catalog хранит статический каталог тарифов, загружаемый один раз при старте.
type Catalog struct {
	tariffs []models.Tariff
}

func NewCatalog(tariffs []models.Tariff) *Catalog {
	return &Catalog{tariffs: tariffs}
}

func DefaultCatalog() *Catalog {
	return NewCatalog([]models.Tariff{
		{Key: "mini", Amount: decimal.NewFromInt(399), Photos: 10, Display: "💎 Мини"},
		{Key: "standard", Amount: decimal.NewFromInt(599), Photos: 25, Display: "💎 Стандарт"},
		{Key: "premium", Amount: decimal.NewFromInt(1199), Photos: 60, Display: "💎 Премиум"},
		{Key: "vip", Amount: decimal.NewFromInt(3199), Photos: 200, Display: "💎 VIP"},
		{Key: models.TariffKeyAvatar, Amount: decimal.NewFromInt(590), Avatars: 1, Display: "👤 Аватар"},
	})
}

// Resolve подбирает тариф по сумме платежа с допуском ±0.01.
func (c *Catalog) Resolve(amount decimal.Decimal) (*models.Tariff, bool) {
	for i := range c.tariffs {
		t := &c.tariffs[i]
		if amount.Sub(t.Amount).Abs().LessThanOrEqual(amountTolerance) {
			return t, true
		}
	}
	return nil, false
}

func (c *Catalog) Tariffs() []models.Tariff {
	return c.tariffs
}
