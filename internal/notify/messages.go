package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/axidi/photoai-bot/internal/models"
)

func (n *Notifier) userSuccessText(rep *models.PaymentReport) string {
	parts := []string{
		"✅ Оплата прошла успешно!",
		fmt.Sprintf("📦 Пакет: %s", rep.Tariff.Display),
	}
	if rep.Result.BonusAvatar {
		parts = append(parts, "🎁 +1 аватар в подарок за первую покупку!")
	}
	parts = append(parts,
		fmt.Sprintf("📸 Печенек на балансе: %d", rep.User.PhotoCredits),
		fmt.Sprintf("👤 Аватары на балансе: %d", rep.User.AvatarCredits),
		"",
		"✨ Создай аватар или сгенерируй фото через /menu!",
		fmt.Sprintf("🔗 Приглашай друзей: t.me/%s?start=ref_%d", n.botUsername, rep.User.ID),
	)
	return strings.Join(parts, "\n")
}

func (n *Notifier) operatorReportText(rep *models.PaymentReport) string {
	firstName := rep.User.FirstName
	if firstName == "" {
		firstName = "Пользователь"
	}
	username := rep.User.Username
	if username == "" {
		username = "нет"
	}

	emoji := "💳"
	marker := ""
	if rep.Result.IsFirstPurchase {
		emoji = "🎉"
		marker = " 🔥 ПЕРВАЯ ПОКУПКА!"
	}

	credited := fmt.Sprintf("%d печенек", rep.Result.PhotoDelta)
	if rep.Result.AvatarDelta > 0 {
		credited += fmt.Sprintf(", %d аватар(ов)", rep.Result.AvatarDelta)
		if rep.Result.BonusAvatar {
			credited += " (включая бонусный)"
		}
	}

	referrerText := "Реферер: отсутствует"
	if rep.ReferrerID != nil {
		referrerText = fmt.Sprintf("Реферер: ID %d", *rep.ReferrerID)
	}

	parts := []string{
		fmt.Sprintf("%s *НОВЫЙ ПЛАТЕЖ*%s", emoji, marker),
		"",
		fmt.Sprintf("👤 *%s* (@%s)", firstName, username),
		fmt.Sprintf("🆔 User ID: %d", rep.User.ID),
		fmt.Sprintf("📦 *%s* • %s₽", rep.Tariff.Display, rep.Amount.StringFixed(0)),
		"",
		fmt.Sprintf("✅ *Начислено:* %s", credited),
		fmt.Sprintf("💎 *Баланс:* %d печенек • %d аватар(ов)", rep.User.PhotoCredits, rep.User.AvatarCredits),
		"",
		fmt.Sprintf("📊 Платеж #%d • %s", rep.Result.PriorPayments+1, referrerText),
		fmt.Sprintf("⏰ %s", time.Now().UTC().Format("2006-01-02 15:04:05 UTC")),
	}
	return strings.Join(parts, "\n")
}
