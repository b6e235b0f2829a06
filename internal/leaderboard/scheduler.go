package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// RunReconciler rebuilds the indexes every interval until ctx is done.
func RunReconciler(ctx context.Context, svc *Service, interval time.Duration, logger *zap.SugaredLogger) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := svc.Reconcile(ctx); err != nil {
				logger.Errorw("reconciliation failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	sched.Start()
	logger.Infow("reconciler scheduled", "interval", interval)

	<-ctx.Done()
	return sched.Shutdown()
}
