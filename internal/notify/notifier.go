// Package notify отправляет подтверждения платежей пользователю и отчёты
// операторам через Telegram. Ошибка доставки одному получателю никогда не
// мешает остальным.
package notify

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/axidi/photoai-bot/internal/models"
	"github.com/axidi/photoai-bot/utils"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Notifier struct {
	api    sender
	logger *utils.Logger

	botUsername string
	// operators получают отчёты об успешных платежах, criticalOperators
	// служит выделенным каналом для критических эскалаций.
	operators         []int64
	criticalOperators []int64
}

func NewNotifier(api sender, botUsername string, operators, criticalOperators []int64, logger *utils.Logger) *Notifier {
	return &Notifier{
		api:               api,
		logger:            logger,
		botUsername:       strings.TrimPrefix(botUsername, "@"),
		operators:         operators,
		criticalOperators: criticalOperators,
	}
}

// send отправляет сообщение с Markdown-разметкой; если транспорт отклонил
// разметку, повторяет один раз без форматирования.
func (n *Notifier) send(chatID int64, text string, replyMarkup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if replyMarkup != nil {
		msg.ReplyMarkup = replyMarkup
	}

	_, err := n.api.Send(msg)
	if err == nil {
		return nil
	}
	if !isFormattingError(err) {
		return err
	}

	n.logger.Warnf("Markdown rejected for chat %d, retrying as plain text: %v", chatID, err)
	plain := tgbotapi.NewMessage(chatID, text)
	if replyMarkup != nil {
		plain.ReplyMarkup = replyMarkup
	}
	_, err = n.api.Send(plain)
	return err
}

func isFormattingError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't parse entities") ||
		strings.Contains(msg, "can't parse message text") ||
		strings.Contains(msg, "unsupported start tag")
}

// PaymentSuccess рассылает подтверждение пользователю и отчёт каждому
// оператору независимо.
func (n *Notifier) PaymentSuccess(ctx context.Context, rep *models.PaymentReport) {
	if err := n.send(rep.User.ID, n.userSuccessText(rep), successKeyboard()); err != nil {
		n.logger.Errorf("Failed to notify user %d about payment %s: %v", rep.User.ID, rep.PaymentID, err)
	}

	text := n.operatorReportText(rep)
	for _, opID := range n.operators {
		if err := n.send(opID, text, nil); err != nil {
			n.logger.Errorf("Failed to notify operator %d about payment %s: %v", opID, rep.PaymentID, err)
		}
	}
}

// PaymentFailed показывает пользователю общий текст отказа; внутренняя
// классификация ошибок наружу не выходит.
func (n *Notifier) PaymentFailed(ctx context.Context, userID int64) {
	text := "❌ Ошибка обработки платежа. Обратитесь в поддержку: @AXIDI_Help"
	if err := n.send(userID, text, nil); err != nil {
		n.logger.Errorf("Failed to send failure notice to user %d: %v", userID, err)
	}
}

func (n *Notifier) OperatorWarning(ctx context.Context, text string) {
	for _, opID := range n.operators {
		if err := n.send(opID, "⚠️ "+text, nil); err != nil {
			n.logger.Errorf("Failed to send warning to operator %d: %v", opID, err)
		}
	}
}

func (n *Notifier) Critical(ctx context.Context, text string) {
	for _, opID := range n.criticalOperators {
		if err := n.send(opID, "🚨 "+text, nil); err != nil {
			n.logger.Errorf("Failed to send critical alert to operator %d: %v", opID, err)
		}
	}
}

func (n *Notifier) Startup(ctx context.Context) {
	for _, opID := range n.operators {
		if err := n.send(opID, "✅ Бот запущен, webhook активен", nil); err != nil {
			n.logger.Warnf("Failed to send startup notice to operator %d: %v", opID, err)
		}
	}
}

func successKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Создать аватар", "train_flux"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏠 В меню", "back_to_menu"),
		),
	)
}
