package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultPurgeSchedule = "@every 1h"
	DefaultRetention     = 24 * time.Hour
)

// ImportPurger deletes statement imports older than the retention window.
type ImportPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int, error)
}

// PurgeScheduler runs the import purge on a cron schedule.
type PurgeScheduler struct {
	cron      *cron.Cron
	purger    ImportPurger
	retention time.Duration
	timeout   time.Duration
}

func NewPurgeScheduler(purger ImportPurger, retention time.Duration) *PurgeScheduler {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PurgeScheduler{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		purger:    purger,
		retention: retention,
		timeout:   time.Minute,
	}
}

// Schedule registers the purge job. An empty schedule uses DefaultPurgeSchedule.
func (s *PurgeScheduler) Schedule(schedule string) (cron.EntryID, error) {
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	id, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return 0, fmt.Errorf("schedule import purge %q: %w", schedule, err)
	}
	return id, nil
}

// RunOnce purges expired imports and returns how many were removed.
func (s *PurgeScheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.purger.PurgeExpired(ctx, s.retention)
	if err != nil {
		slog.ErrorContext(ctx, "Import purge failed", "error", err, "retention", s.retention)
		return 0
	}
	if n > 0 {
		slog.InfoContext(ctx, "Purged expired imports", "count", n, "retention", s.retention)
	}
	return n
}

func (s *PurgeScheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running purge to finish.
func (s *PurgeScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
