package task

import (
	"context"
	"time"

	"progression-engine/services/progression"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runOffset keeps the sweep clear of the exact day boundary.
const runOffset = 5 * time.Minute

type Scheduler struct {
	service  *Service
	calendar *progression.Calendar
	cancel   context.CancelFunc
}

func NewScheduler(svc *Service, calendar *progression.Calendar) *Scheduler {
	return &Scheduler{service: svc, calendar: calendar}
}

// StartScheduler runs the daily sweep loop for the lifetime of the app.
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
	zap.L().Info("[Scheduler] started daily challenge scheduler", zap.String("timezone", s.calendar.Location().String()))

	// today's set may not exist yet after a restart
	s.runDaily(ctx)

	for {
		now := s.calendar.Now()
		next := s.nextRunTime()
		sleep := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleep),
		)

		select {
		case <-time.After(sleep):
			s.runDaily(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context) {
	day := s.calendar.TodayKey()
	if err := s.service.EnqueueMaterialize(ctx, day); err != nil {
		zap.L().Error("[Scheduler] failed to enqueue materialization", zap.String("day", day), zap.Error(err))
	}
}

func (s *Scheduler) nextRunTime() time.Time {
	return s.calendar.NextMidnight().Add(runOffset)
}
