package surge

import (
	"math"
	"time"

	"github.com/spec-kit/support-iq/internal/config"
)

// Observation is the ticket volume seen for one component.
type Observation struct {
	Count int
	// Elapsed is the time since the observation window opened.
	Elapsed time.Duration
	// BaselineCount is the number of tickets in the baseline period.
	BaselineCount int
}

// Assessment is the outcome of comparing an Observation with its baseline.
type Assessment struct {
	Rate       float64
	Baseline   float64
	Ratio      float64
	Delta      float64
	Confidence float64
	Alert      bool
}

// Assess projects the observed count to a full window and compares the rate
// with the mean per-window baseline. It alerts only when the rate strictly
// exceeds multiplier times the baseline.
func Assess(cfg config.SurgeConfig, obs Observation) Assessment {
	if obs.Elapsed <= 0 || cfg.Window <= 0 {
		return Assessment{}
	}
	span := obs.Elapsed
	if span < cfg.MinElapsed {
		span = cfg.MinElapsed
	}
	rate := float64(obs.Count) * float64(cfg.Window) / float64(span)

	windows := float64(cfg.BaselinePeriod) / float64(cfg.Window)
	baseline := 0.0
	if windows > 0 {
		baseline = float64(obs.BaselineCount) / windows
	}
	baseline = math.Max(baseline, cfg.MinBaseline)

	a := Assessment{Rate: rate, Baseline: baseline, Delta: rate - baseline}
	if baseline > 0 {
		a.Ratio = rate / baseline
	}
	a.Alert = rate > cfg.Multiplier*baseline
	if a.Alert {
		size := math.Min(1, a.Ratio/cfg.Multiplier-1)
		recency := 1 - math.Min(1, float64(obs.Elapsed)/float64(cfg.Window))
		a.Confidence = clamp01(0.5*size + 0.5*recency)
	}
	return a
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
