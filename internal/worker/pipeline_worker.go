package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/feedback"
)

// FeedbackCycler runs one threshold adaptation cycle.
type FeedbackCycler interface {
	RunFeedbackCycle(ctx context.Context) (feedback.CycleResult, error)
}

// SurgeSweeper evaluates every active component once.
type SurgeSweeper interface {
	SweepSurges(ctx context.Context) ([]domain.GhostTicketAlert, error)
}

// RunFeedbackLoop adapts the acceptance threshold every interval until ctx ends.
func RunFeedbackLoop(ctx context.Context, interval time.Duration, cycler FeedbackCycler, logger *zap.Logger) error {
	return every(ctx, interval, logger.With(zap.String("loop", "feedback")), func(ctx context.Context) error {
		result, err := cycler.RunFeedbackCycle(ctx)
		if err != nil {
			return err
		}
		logger.Info("feedback cycle complete",
			zap.Int("signals", result.Total),
			zap.Int("positive", result.Positive),
			zap.Bool("changed", result.Changed),
			zap.Float64("threshold", result.Current.Value),
			zap.Int64("version", result.Current.Version),
			zap.Int("articles_updated", result.ArticlesUpdated),
		)
		return nil
	})
}

// RunSurgeLoop sweeps components for ticket surges every interval until ctx ends.
func RunSurgeLoop(ctx context.Context, interval time.Duration, sweeper SurgeSweeper, logger *zap.Logger) error {
	return every(ctx, interval, logger.With(zap.String("loop", "surge")), func(ctx context.Context) error {
		alerts, err := sweeper.SweepSurges(ctx)
		for _, a := range alerts {
			logger.Warn("ghost ticket alert",
				zap.String("component", a.Component),
				zap.Float64("projected_rate", a.ProjectedRate),
				zap.Float64("baseline", a.Baseline),
				zap.Float64("confidence", a.Confidence),
			)
		}
		return err
	})
}

// every calls fn on each tick. Failures are logged and the loop goes on;
// it returns nil once ctx ends.
func every(ctx context.Context, interval time.Duration, logger *zap.Logger, fn func(context.Context) error) error {
	if interval <= 0 {
		logger.Info("loop disabled")
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				logger.Error("periodic run failed", zap.Error(err))
			}
		}
	}
}
