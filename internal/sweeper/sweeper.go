// Package sweeper periodically deletes schedules whose window has passed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes schedules that ended more than retention ago.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Sweeper runs a Purger on a cron schedule.
type Sweeper struct {
	cron      *cron.Cron
	purger    Purger
	spec      string
	retention time.Duration
	logger    *slog.Logger
}

// New creates a Sweeper running on spec (standard cron syntax or descriptors such as "@hourly").
func New(logger *slog.Logger, purger Purger, spec string, retention time.Duration, loc *time.Location) *Sweeper {
	if loc == nil {
		loc = time.UTC
	}
	return &Sweeper{
		cron:      cron.New(cron.WithLocation(loc)),
		purger:    purger,
		spec:      spec,
		retention: retention,
		logger:    logger,
	}
}

// Start registers the job and blocks until ctx is cancelled, then stops the cron.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("add purge job %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("Sweeper started", "spec", s.spec, "retention", s.retention)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop waits for a running job to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Sweeper stopped")
}

// Sweep runs one purge, logging the outcome.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.purger.Purge(ctx, s.retention)
	if err != nil {
		s.logger.Error("Failed to purge expired schedules", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Removed expired schedules", "count", n)
	}
}
