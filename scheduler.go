package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"communityera/cluster"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sweeper runs one retroactive clustering pass.
type sweeper interface {
	Sweep(ctx context.Context) (cluster.SweepResult, error)
}

// startSweepSchedule runs the cluster sweep on a standard 5-field cron spec,
// e.g. "*/15 * * * *". The caller stops the returned scheduler on shutdown.
func startSweepSchedule(spec string, s sweeper, timeout time.Duration, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, sweepJob(s, timeout, log)); err != nil {
		return nil, fmt.Errorf("schedule cluster sweep %q: %w", spec, err)
	}
	c.Start()
	log.Info("cluster sweep scheduled", zap.String("spec", spec), zap.Duration("timeout", timeout))
	return c, nil
}

func sweepJob(s sweeper, timeout time.Duration, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res, err := s.Sweep(ctx)
		switch {
		case errors.Is(err, cluster.ErrSweepRunning):
			log.Info("cluster sweep skipped, another run holds the lock")
		case err != nil:
			log.Error("scheduled cluster sweep failed",
				zap.String("run_id", res.RunID),
				zap.Int("merged", res.Merged),
				zap.Error(err),
			)
		default:
			log.Info("scheduled cluster sweep finished",
				zap.String("run_id", res.RunID),
				zap.Int("scanned", res.Scanned),
				zap.Int("merged", res.Merged),
				zap.Int("failed", res.Failed),
				zap.Duration("took", res.Duration()),
			)
		}
	}
}
