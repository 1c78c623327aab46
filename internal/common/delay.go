package common

import (
	"context"
	"time"
)

// Sleep ждёт d или отмены контекста. Возвращает ошибку контекста, если ожидание прервано,
// чтобы вызывающий код мог прекратить работу на этой точке приостановки.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
