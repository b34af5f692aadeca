package payouts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/tip-zed/tipzed/internal/access"
)

const sweepLockKey = "payouts:sweep:lock"

// releaseLock deletes the lock only if it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ParseSchedule accepts five-field cron expressions and descriptors such as @daily.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

// Scheduler runs the sweep on a cron schedule. When a Redis client is
// configured, a lock keeps concurrent instances from sweeping at the same time.
type Scheduler struct {
	cron      *cron.Cron
	schedule  cron.Schedule
	sweeper   *Sweeper
	principal access.Principal
	cache     *redis.Client
	lockTTL   time.Duration
	logger    *slog.Logger
}

// NewScheduler wires a sweeper to schedule. cache may be nil.
func NewScheduler(sweeper *Sweeper, schedule cron.Schedule, principal access.Principal, cache *redis.Client, lockTTL time.Duration, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		schedule:  schedule,
		sweeper:   sweeper,
		principal: principal,
		cache:     cache,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Start registers the sweep job and starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Schedule(s.schedule, cron.FuncJob(s.tick))
	s.cron.Start()
	s.logger.Info("payout sweep scheduled", slog.Time("next_run", s.NextRun(time.Now())))
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the first activation after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now.UTC())
}

// RunOnce performs a single sweep if the lock can be taken. ran is false
// when another instance holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (report SweepReport, ran bool, err error) {
	release, acquired, err := s.acquire(ctx)
	if err != nil {
		return SweepReport{}, false, err
	}
	if !acquired {
		return SweepReport{}, false, nil
	}
	defer release()

	report, err = s.sweeper.Run(ctx, s.principal)
	return report, true, err
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockTTL)
	defer cancel()

	_, ran, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.logger.Error("scheduled payout sweep failed", slog.Any("error", err))
	case !ran:
		s.logger.Info("payout sweep skipped, lock held elsewhere")
	}
}

func (s *Scheduler) acquire(ctx context.Context) (func(), bool, error) {
	if s.cache == nil {
		return func() {}, true, nil
	}
	token := uuid.NewString()
	ok, err := s.cache.SetNX(ctx, sweepLockKey, token, s.lockTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return func() {
		err := releaseLock.Run(context.Background(), s.cache, []string{sweepLockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			s.logger.Warn("release sweep lock", slog.Any("error", err))
		}
	}, true, nil
}
