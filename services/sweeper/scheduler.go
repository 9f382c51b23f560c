package sweeper

import (
	"context"
	"time"

	"eventix/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Scheduler struct {
	service  *Service
	interval time.Duration

	cancel context.CancelFunc
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	interval := cfg.Checkout.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{service: svc, interval: interval}
}

// StartScheduler wires the sweep loop into the fx lifecycle.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	zap.L().Info("[Scheduler] started order sweep scheduler",
		zap.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		nextDaily := nextRunTime(time.Now(), 1, 0)

		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-time.After(time.Until(nextDaily)):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] running stale order sweep")

	if err := s.service.EnqueueStaleOrders(ctx); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue stale orders", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] finished stale order sweep",
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) runDaily(ctx context.Context) {
	zap.L().Info("[Scheduler] running daily catalog refresh")
	s.service.EnqueueCatalogRefresh(ctx)
}

// nextRunTime computes the next wall-clock occurrence of hour:minute.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(next) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
