package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/feedback"
)

type countingCycler struct{ calls atomic.Int32 }

func (c *countingCycler) RunFeedbackCycle(context.Context) (feedback.CycleResult, error) {
	if c.calls.Add(1) == 1 {
		return feedback.CycleResult{}, errors.New("store down")
	}
	return feedback.CycleResult{Changed: true}, nil
}

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) SweepSurges(context.Context) ([]domain.GhostTicketAlert, error) {
	s.calls.Add(1)
	return []domain.GhostTicketAlert{{Component: "billing-api"}}, nil
}

func TestLoopsKeepRunningAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycler := &countingCycler{}
	sweeper := &countingSweeper{}

	done := make(chan error, 2)
	go func() { done <- RunFeedbackLoop(ctx, 5*time.Millisecond, cycler, zap.NewNop()) }()
	go func() { done <- RunSurgeLoop(ctx, 5*time.Millisecond, sweeper, zap.NewNop()) }()

	deadline := time.After(5 * time.Second)
	for cycler.calls.Load() < 3 || sweeper.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("loops stalled: cycles=%d sweeps=%d", cycler.calls.Load(), sweeper.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("loop returned %v", err)
		}
	}
}

func TestDisabledLoopWaitsForCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &countingSweeper{}
	done := make(chan error, 1)
	go func() { done <- RunSurgeLoop(ctx, 0, sweeper, zap.NewNop()) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if sweeper.calls.Load() != 0 {
		t.Fatal("disabled loop must not sweep")
	}
}
