package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunTierSync периодически досоздаёт недостающие ваучеры уровней, пока ctx не отменён.
func (s *Service) RunTierSync(ctx context.Context, interval time.Duration) error {
	return s.runPeriodic(ctx, "tier sync", interval, s.SyncTierVouchers)
}

// RunMonthlyVouchers периодически выдаёт ежемесячные ваучеры. Повторные запуски
// в пределах месяца ничего не выдают, поэтому интервал может быть меньше месяца.
func (s *Service) RunMonthlyVouchers(ctx context.Context, interval time.Duration) error {
	return s.runPeriodic(ctx, "monthly vouchers", interval, s.IssueMonthlyVouchers)
}

func (s *Service) runPeriodic(ctx context.Context, name string, interval time.Duration, job func(ctx context.Context) (int, error)) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := job(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("background job failed", zap.String("job", name), zap.Error(err))
			}
		}
	}
}
