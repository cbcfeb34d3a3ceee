package scheduler

import (
	"context"
	"errors"
	"time"
)

type sweeper interface {
	SweepStuck(ctx context.Context, threshold time.Duration) (int, error)
}

type pruner interface {
	Prune(ctx context.Context, horizon time.Duration) (int64, error)
}

// SweepJob fails deliveries stuck in pending for longer than stuckAfter
func SweepJob(tracker sweeper, interval, stuckAfter time.Duration) Job {
	return Job{
		Name:     "sweep-stuck",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := tracker.SweepStuck(ctx, stuckAfter)
			return err
		},
	}
}

// RetentionJob prunes activity entries and settled delivery records past
// their horizons. Both prunes run even if the first fails.
func RetentionJob(activity, deliveries pruner, interval, activityHorizon, deliveryHorizon time.Duration) Job {
	return Job{
		Name:     "retention",
		Interval: interval,
		Timeout:  5 * time.Minute,
		Run: func(ctx context.Context) error {
			_, aerr := activity.Prune(ctx, activityHorizon)
			_, derr := deliveries.Prune(ctx, deliveryHorizon)
			return errors.Join(aerr, derr)
		},
	}
}

// RetryJob re-dispatches failed deliveries
func RetryJob(retry func(ctx context.Context) error, interval time.Duration) Job {
	return Job{
		Name:     "retry-failed",
		Interval: interval,
		Timeout:  10 * time.Minute,
		Run:      retry,
	}
}
