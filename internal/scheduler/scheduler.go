// Package scheduler runs the periodic maintenance jobs (the queue TTL sweep)
// on gocron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rando/backend/internal/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const slowThreshold = 5 * time.Second

// Sweeper removes expired queue entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

type Scheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a stopped scheduler. clock may be nil.
func New(clock clockwork.Clock) (*Scheduler, error) {
	opts := []gocron.SchedulerOption{
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.NewGocronLogger()),
	}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: s, ctx: ctx, cancel: cancel}, nil
}

// Every runs job every interval. Runs never overlap; a run that is still
// busy when the next one is due pushes it back.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context) error, startNow bool) error {
	if name == "" {
		return errors.New("empty job name")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("job %s: nil job function", name)
	}

	wrapped := func() {
		start := time.Now()
		if err := job(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
		if d := time.Since(start); d > slowThreshold {
			zap.L().Warn("slow scheduled job", zap.String("job", name), zap.Duration("duration", d))
		}
	}

	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if startNow {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	j, err := s.scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(wrapped), opts...)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	fields := []zap.Field{zap.String("job", name), zap.Duration("every", interval)}
	if next, err := j.NextRun(); err == nil {
		fields = append(fields, zap.Time("next_run", next))
	}
	zap.L().Info("job scheduled", fields...)
	return nil
}

// ScheduleSweep registers the queue TTL sweep.
func (s *Scheduler) ScheduleSweep(sw Sweeper, interval time.Duration) error {
	return s.Every("queue-sweep", interval, func(ctx context.Context) error {
		_, err := sw.Sweep(ctx)
		return err
	}, true)
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
	zap.L().Debug("scheduler started", zap.Int("jobs", len(s.scheduler.Jobs())))
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	return nil
}

// Run starts the scheduler and stops it when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop()
}
