package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/axidi/photoai-bot/internal/models"
)

// Состояния пайплайна обработки платежа. FAILED достижим только до
// CREDITED: после успешного начисления пайплайн всегда доходит до DONE,
// ошибки дальше по конвейеру эскалируются, но не отменяют платёж.
type pipelineState string

const (
	stateReceived         pipelineState = "RECEIVED"
	stateIdempotency      pipelineState = "IDEMPOTENCY_CHECKED"
	stateTariffResolved   pipelineState = "TARIFF_RESOLVED"
	stateReferralVerified pipelineState = "REFERRAL_VERIFIED"
	stateCredited         pipelineState = "CREDITED"
	stateFlagUpdated      pipelineState = "FLAG_UPDATED"
	stateCacheInvalidated pipelineState = "CACHE_INVALIDATED"
	stateNotified         pipelineState = "NOTIFIED"
	stateDone             pipelineState = "DONE"
	stateFailed           pipelineState = "FAILED"
)

func (s *Service) transition(paymentID string, state pipelineState) {
	s.logger.Debugf("Payment %s -> %s", paymentID, state)
}

// ProcessPayment проводит событие payment.succeeded через весь конвейер:
// идемпотентность → тариф → рефералка → начисление → флаг первой покупки →
// сброс кеша → уведомления.
func (s *Service) ProcessPayment(ctx context.Context, ev models.PaymentEvent) error {
	// Принятое событие доводится до конца независимо от вызывающей стороны:
	// обрыв HTTP-запроса провайдера не должен прерывать начисление и шаги
	// после него.
	ctx = context.WithoutCancel(ctx)

	s.transition(ev.PaymentID, stateReceived)
	s.logger.Infof("Processing payment %s: user_id=%d amount=%s",
		ev.PaymentID, ev.UserID, ev.Amount.StringFixed(2))

	processed, err := s.repo.PaymentExists(ctx, ev.PaymentID)
	if err != nil {
		// Недоступный журнал означает жёсткую остановку: считать платёж
		// необработанным при неопределённости значит рискнуть двойным
		// начислением.
		s.transition(ev.PaymentID, stateFailed)
		s.failPipeline(ctx, ev, fmt.Sprintf("Проверка идемпотентности недоступна: %v", err))
		return fmt.Errorf("idempotency check for payment %s: %w", ev.PaymentID, err)
	}
	if processed {
		s.logger.Warnf("Payment %s for user %d already processed, skipping", ev.PaymentID, ev.UserID)
		return ErrDuplicatePayment
	}
	s.transition(ev.PaymentID, stateIdempotency)

	tariff, ok := s.catalog.Resolve(ev.Amount)
	if !ok {
		s.logger.Errorf("No tariff matches amount=%s for payment %s", ev.Amount.StringFixed(2), ev.PaymentID)
		s.transition(ev.PaymentID, stateFailed)
		s.failPipeline(ctx, ev, fmt.Sprintf("Неизвестный тариф для суммы %s₽", ev.Amount.StringFixed(2)))
		return fmt.Errorf("payment %s amount %s: %w", ev.PaymentID, ev.Amount.StringFixed(2), ErrUnknownTariff)
	}
	s.transition(ev.PaymentID, stateTariffResolved)

	if !s.ensureReferralIntegrity(ctx, ev.UserID) {
		// Не фатально: начисление идёт дальше, бонусная атрибуция
		// деградирует до «без реферера».
		s.notifier.OperatorWarning(ctx, fmt.Sprintf(
			"Не удалось восстановить реферальную связь для user_id=%d, payment_id=%s", ev.UserID, ev.PaymentID))
	}
	s.transition(ev.PaymentID, stateReferralVerified)

	result, err := s.credit(ctx, ev, tariff)
	if err != nil {
		if err == ErrDuplicatePayment {
			// Гонка дубликатов схлопнулась на констрейнте журнала.
			s.logger.Warnf("Payment %s lost duplicate race, treated as processed", ev.PaymentID)
			return ErrDuplicatePayment
		}
		s.logger.Errorf("Crediting failed for payment %s: %v", ev.PaymentID, err)
		s.transition(ev.PaymentID, stateFailed)
		s.notifier.PaymentFailed(ctx, ev.UserID)
		s.failPipeline(ctx, ev, fmt.Sprintf("Ошибка начисления ресурсов: %v", err))
		return fmt.Errorf("crediting payment %s: %w", ev.PaymentID, err)
	}
	s.transition(ev.PaymentID, stateCredited)
	s.logger.Infof("Payment %s credited: +%d photos, +%d avatars (first=%v bonus=%v)",
		ev.PaymentID, result.PhotoDelta, result.AvatarDelta, result.IsFirstPurchase, result.BonusAvatar)

	// Дальше платёж уже состоялся: любые сбои логируются и эскалируются,
	// но наружу пайплайн всегда отвечает успехом.
	if result.IsFirstPurchase {
		s.markFirstPurchaseCompleted(ctx, ev)
	}
	s.transition(ev.PaymentID, stateFlagUpdated)

	if err := s.cache.InvalidateUser(ctx, ev.UserID); err != nil {
		s.logger.Warnf("Cache invalidation failed for user %d: %v", ev.UserID, err)
	}
	s.transition(ev.PaymentID, stateCacheInvalidated)

	s.sendPaymentNotifications(ctx, ev, tariff, result)
	s.transition(ev.PaymentID, stateNotified)

	s.transition(ev.PaymentID, stateDone)
	s.logger.Infof("Payment %s pipeline finished", ev.PaymentID)
	return nil
}

// credit выполняет начисление одной транзакцией: подсчёт прежних платежей,
// атомарные инкременты баланса, строка журнала под uniqueness-констрейнтом
// и агрегат статистики. Полузачисленное состояние без строки журнала
// невозможно: либо коммитится всё, либо ничего.
func (s *Service) credit(ctx context.Context, ev models.PaymentEvent, tariff *models.Tariff) (*models.CreditResult, error) {
	tx, err := s.repo.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Panic during crediting of payment %s: %v", ev.PaymentID, r)
			s.repo.Rollback(tx)
			panic(r)
		}
	}()

	prior, err := s.repo.CountUserPayments(ctx, ev.UserID, ev.PaymentID, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	// Счётчик журнала служит единственным авторитетным признаком первой покупки.
	// Мутабельный флаг first_purchase_completed может отставать (см.
	// markFirstPurchaseCompleted) и для бонуса не используется.
	result := &models.CreditResult{
		PhotoDelta:      tariff.Photos,
		AvatarDelta:     tariff.Avatars,
		IsFirstPurchase: prior == 0,
		PriorPayments:   prior,
	}
	if result.IsFirstPurchase && tariff.Key != models.TariffKeyAvatar {
		result.AvatarDelta++
		result.BonusAvatar = true
	}

	if err := s.repo.AddUserCredits(ctx, ev.UserID, result.PhotoDelta, result.AvatarDelta, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	record := &models.PaymentRecord{
		PaymentID: ev.PaymentID,
		UserID:    ev.UserID,
		Amount:    ev.Amount,
		Metadata:  s.paymentMetadata(ev, tariff, result),
	}
	inserted, err := s.repo.CreatePaymentRecord(ctx, record, tx)
	if err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}
	if !inserted {
		// Параллельная доставка успела вставить строку первой: откатываем
		// свои инкременты, начислил уже победитель гонки.
		s.repo.Rollback(tx)
		return nil, ErrDuplicatePayment
	}

	if err := s.repo.UpsertPaymentStats(ctx, ev.UserID, ev.Amount, tx); err != nil {
		s.repo.Rollback(tx)
		return nil, err
	}

	if err := s.repo.Commit(tx); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) paymentMetadata(ev models.PaymentEvent, tariff *models.Tariff, result *models.CreditResult) string {
	meta := map[string]interface{}{
		"tariff_key":        tariff.Key,
		"photos_added":      result.PhotoDelta,
		"avatars_added":     result.AvatarDelta,
		"is_first_purchase": result.IsFirstPurchase,
		"bonus_avatar":      result.BonusAvatar,
		"description":       ev.Description,
		"currency":          ev.Currency,
	}
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		s.logger.Warnf("Failed to marshal metadata for payment %s: %v", ev.PaymentID, err)
		return "{}"
	}
	return string(raw)
}

// markFirstPurchaseCompleted взводит флаг первой покупки с ограниченным
// числом повторов. Флаг управляет прайсингом и напоминаниями в других
// подсистемах, поэтому исчерпание попыток считается критическим инцидентом,
// а не рядовой ошибкой. Начисление при этом уже состоялось и не откатывается.
func (s *Service) markFirstPurchaseCompleted(ctx context.Context, ev models.PaymentEvent) {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := s.repo.SetFirstPurchaseCompleted(ctx, ev.UserID); err != nil {
			s.logger.Errorf("Attempt %d: failed to set first_purchase_completed for user %d: %v", attempt, ev.UserID, err)
			if isTransientStoreError(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Errorf("Giving up on first_purchase_completed for user %d, attempts made: %d, last error: %v", ev.UserID, attempt, err)
		s.notifier.Critical(ctx, fmt.Sprintf(
			"Критическая ошибка: не удалось обновить first_purchase для user_id=%d (payment_id=%s), сделано попыток: %d, последняя ошибка: %v",
			ev.UserID, ev.PaymentID, attempt, err))
		return
	}
	s.logger.Infof("first_purchase_completed set for user %d", ev.UserID)
}

func (s *Service) sendPaymentNotifications(ctx context.Context, ev models.PaymentEvent, tariff *models.Tariff, result *models.CreditResult) {
	user, err := s.repo.GetUser(ctx, ev.UserID)
	if err != nil || user == nil {
		s.logger.Errorf("Failed to load user %d for payment notifications: %v", ev.UserID, err)
		return
	}

	s.notifier.PaymentSuccess(ctx, &models.PaymentReport{
		PaymentID:  ev.PaymentID,
		User:       user,
		Tariff:     tariff,
		Amount:     ev.Amount,
		Result:     result,
		ReferrerID: user.ReferrerID,
	})
}

// failPipeline реализует путь отчёта об ошибке, достижимый с любого шага
// до CREDITED.
func (s *Service) failPipeline(ctx context.Context, ev models.PaymentEvent, reason string) {
	s.notifier.OperatorWarning(ctx, fmt.Sprintf(
		"Ошибка обработки платежа\n\n%s\n🆔 Payment ID: %s\n👤 User ID: %d", reason, ev.PaymentID, ev.UserID))
}
