package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/conorfennell/openingdrill/internal/sync"
)

// Syncer runs one deck source sync.
type Syncer interface {
	Run(ctx context.Context) (sync.Report, error)
}

// Scheduler manages the periodic deck source sync.
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    Syncer
	interval  time.Duration
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler that syncs every interval.
func New(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		syncer:    syncer,
		interval:  interval,
		logger:    logger,
	}
}

// Start registers the sync job and runs the scheduler in the background. The
// first sync runs immediately. Jobs stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", s.interval)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.scheduler.Every(s.interval).Do(s.runSync); err != nil {
		s.cancel()
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.Info("Scheduled deck sync", "interval", s.interval)
	return nil
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}

func (s *Scheduler) runSync() {
	if s.ctx.Err() != nil {
		return
	}
	report, err := s.syncer.Run(s.ctx)
	if err != nil {
		s.logger.Error("Scheduled sync failed", "error", err, "sources", report.Sources)
		return
	}
	s.logger.Info("Scheduled sync finished", "sources", report.Sources, "lines", report.Lines,
		"deactivated", report.Deactivated)
}
