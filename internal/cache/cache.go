// Package cache хранит снапшоты профиля пользователя и умеет их сбрасывать
// после начисления. Отсутствие настроенного кеша считается штатным режимом.
package cache

import "context"

type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64) error
}

// Noop используется, когда Redis не сконфигурирован.
type Noop struct{}

func (Noop) InvalidateUser(context.Context, int64) error { return nil }
