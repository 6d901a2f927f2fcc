package service

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrDuplicatePayment означает, что платёж уже есть в журнале. Для внешнего
	// вызывающего это успех: повторная доставка ничего не меняет.
	ErrDuplicatePayment = errors.New("payment already processed")

	// ErrUnknownTariff означает, что сумма не совпала ни с одним тарифом. Платёж
	// остаётся неначисленным до ручной сверки.
	ErrUnknownTariff = errors.New("unknown tariff plan")
)

// isTransientStoreError определяет, имеет ли смысл повторять операцию:
// конкуренцию за строки и обрывы соединения имеет, всё остальное нет.
func isTransientStoreError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P03":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
