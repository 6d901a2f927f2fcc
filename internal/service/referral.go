package service

import (
	"context"
)

// ensureReferralIntegrity проверяет реферальную связь пользователя перед
// начислением и чинит users.referrer_id по таблице referral_relations, если
// колонка потерялась. Связь никогда не создаётся с нуля: если истории нет,
// пользователь просто остаётся без реферера.
//
// Возвращает false только для невосстановимо битой связи. Ошибка здесь не
// блокирует начисление: платёж важнее реферального бонуса.
func (s *Service) ensureReferralIntegrity(ctx context.Context, userID int64) bool {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		s.logger.Errorf("Referral check: failed to get user %d: %v", userID, err)
		return false
	}
	if user == nil {
		return false
	}

	if user.ReferrerID != nil {
		referrer, err := s.repo.GetUser(ctx, *user.ReferrerID)
		if err != nil {
			s.logger.Errorf("Referral check: failed to get referrer %d: %v", *user.ReferrerID, err)
			return false
		}
		if referrer != nil && !referrer.IsBlocked {
			return true
		}
		s.logger.Warnf("Referral check: user %d points to invalid referrer %d", userID, *user.ReferrerID)
	}

	rel, err := s.repo.GetReferralRelation(ctx, userID)
	if err != nil {
		s.logger.Errorf("Referral check: failed to read relation history for user %d: %v", userID, err)
		return false
	}
	if rel == nil {
		// Истории нет: связь отсутствовала изначально либо не подлежит
		// восстановлению.
		return user.ReferrerID == nil
	}

	referrer, err := s.repo.GetUser(ctx, rel.ReferrerID)
	if err != nil || referrer == nil || referrer.IsBlocked {
		s.logger.Warnf("Referral check: history referrer %d for user %d is unusable", rel.ReferrerID, userID)
		return false
	}

	if user.ReferrerID == nil || *user.ReferrerID != rel.ReferrerID {
		if err := s.repo.SetUserReferrer(ctx, userID, rel.ReferrerID); err != nil {
			s.logger.Errorf("Referral check: failed to repair referrer for user %d: %v", userID, err)
			return false
		}
		s.logger.Infof("Referral check: repaired referrer %d for user %d", rel.ReferrerID, userID)
	}
	return true
}
