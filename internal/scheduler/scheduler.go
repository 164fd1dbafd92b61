package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"GigSafe/internal/services"
)

const autoReleaseJobName = "completion-auto-release"

// Sweeper releases every completion whose auto-release deadline has passed.
type Sweeper interface {
	SweepAutoReleases(ctx context.Context, limit int) (services.SweepSummary, error)
}

// AutoReleaseScheduler runs the auto-release sweep on a fixed interval. A run
// still in progress when the next one is due pushes the next one back.
type AutoReleaseScheduler struct {
	scheduler gocron.Scheduler
	sweeper   Sweeper
	interval  time.Duration
	batch     int
	timeout   time.Duration
	log       *zap.Logger
}

func NewAutoReleaseScheduler(sweeper Sweeper, interval time.Duration, batch int, log *zap.Logger) (*AutoReleaseScheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("auto-release interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	a := &AutoReleaseScheduler{
		scheduler: s,
		sweeper:   sweeper,
		interval:  interval,
		batch:     batch,
		timeout:   interval,
		log:       log.Named("scheduler"),
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(a.Execute),
		gocron.WithName(autoReleaseJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("register job %s: %w", autoReleaseJobName, err)
	}
	return a, nil
}

func (a *AutoReleaseScheduler) Start() {
	a.scheduler.Start()
	a.log.Info("auto-release scheduler started",
		zap.Duration("interval", a.interval),
		zap.Int("batch", a.batch),
	)
}

// Execute runs one sweep. It is the scheduled task body and can also be
// called directly.
func (a *AutoReleaseScheduler) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	started := time.Now()
	summary, err := a.sweeper.SweepAutoReleases(ctx, a.batch)
	if err != nil {
		a.log.Error("auto-release sweep failed", zap.Error(err))
		return
	}
	if summary.Checked == 0 {
		a.log.Debug("no completions due for auto-release")
		return
	}
	a.log.Info("auto-release sweep finished",
		zap.Int("checked", summary.Checked),
		zap.Int("released", summary.Released),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(started)),
	)
}

func (a *AutoReleaseScheduler) Shutdown() error {
	if err := a.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	a.log.Info("auto-release scheduler stopped")
	return nil
}
