package main

import (
	"context"
	"testing"
	"time"

	"communityera/cluster"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sweeperFunc func(ctx context.Context) (cluster.SweepResult, error)

func (f sweeperFunc) Sweep(ctx context.Context) (cluster.SweepResult, error) { return f(ctx) }

func TestStartSweepScheduleRejectsBadSpec(t *testing.T) {
	s := sweeperFunc(func(context.Context) (cluster.SweepResult, error) { return cluster.SweepResult{}, nil })
	_, err := startSweepSchedule("every tuesday", s, time.Minute, zap.NewNop())
	assert.Error(t, err)
}

func TestStartSweepSchedule(t *testing.T) {
	s := sweeperFunc(func(context.Context) (cluster.SweepResult, error) { return cluster.SweepResult{}, nil })
	c, err := startSweepSchedule("*/15 * * * *", s, time.Minute, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)
	c.Stop()
}

func TestSweepJobBoundsEachRun(t *testing.T) {
	var calls int
	var deadline time.Time
	s := sweeperFunc(func(ctx context.Context) (cluster.SweepResult, error) {
		calls++
		deadline, _ = ctx.Deadline()
		return cluster.SweepResult{RunID: "r1", Merged: 2}, nil
	})

	start := time.Now()
	sweepJob(s, 30*time.Second, zap.NewNop())()

	assert.Equal(t, 1, calls)
	assert.WithinDuration(t, start.Add(30*time.Second), deadline, 5*time.Second)
}

func TestSweepJobToleratesLockAndErrors(t *testing.T) {
	for _, err := range []error{cluster.ErrSweepRunning, context.DeadlineExceeded} {
		s := sweeperFunc(func(context.Context) (cluster.SweepResult, error) { return cluster.SweepResult{}, err })
		assert.NotPanics(t, sweepJob(s, time.Second, zap.NewNop()))
	}
}
