package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one periodic task
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero means the interval
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals until its context ends
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// New creates an empty scheduler
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With("component", "scheduler")}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(j Job) {
	if j.Interval <= 0 || j.Run == nil {
		s.logger.Debug("job disabled", "job", j.Name)
		return
	}
	s.jobs = append(s.jobs, j)
}

// Len returns the number of registered jobs
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// Start runs every job once immediately and then on its ticker. It blocks
// until ctx is cancelled and returns nil in that case.
func (s *Scheduler) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, j := range s.jobs {
		g.Go(func() error {
			s.loop(gctx, j)
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	s.logger.Info("job scheduled", "job", j.Name, "interval", j.Interval)

	s.runOnce(ctx, j)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(runCtx); err != nil && ctx.Err() == nil {
		s.logger.Error("job failed", "job", j.Name, "error", err)
		return
	}
	s.logger.Debug("job finished", "job", j.Name, "duration", time.Since(start))
}
