package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/geoimporter/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// Janitor purges task results older than the retention on a cron schedule.
type Janitor struct {
	results   persistence.TaskResultRepository
	schedule  string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	cron *cron.Cron
}

func NewJanitor(results persistence.TaskResultRepository, schedule string, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		results:   results,
		schedule:  schedule,
		retention: retention,
		logger:    logger.With("component", "janitor"),
		now:       time.Now,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	j.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := j.cron.AddFunc(j.schedule, func() {
		deleted, err := j.Purge(ctx)
		if err != nil {
			j.logger.ErrorContext(ctx, "Failed to purge task results", "error", err)

			return
		}

		j.logger.InfoContext(ctx, "Task results purged", "deleted", deleted)
	})
	if err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}

	j.cron.Start()
	j.logger.InfoContext(ctx, "Janitor started", "schedule", j.schedule, "retention", j.retention)

	return nil
}

// Purge deletes the task results created before now minus the retention.
func (j *Janitor) Purge(ctx context.Context) (int, error) {
	return j.results.DeleteOlderThan(ctx, j.now().UTC().Add(-j.retention))
}

// Stop waits for a running purge to return.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}

	<-j.cron.Stop().Done()
}
