package feedback

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
)

// Holder shares the current acceptance threshold. Readers always observe a
// complete version; only the Adapter stores new ones.
type Holder struct {
	current atomic.Pointer[domain.Threshold]
}

// NewHolder starts at version 1 with the given value.
func NewHolder(initial float64, now time.Time) *Holder {
	h := &Holder{}
	h.current.Store(&domain.Threshold{Version: 1, Value: initial, ComputedAt: now})
	return h
}

// Current returns the threshold in effect.
func (h *Holder) Current() domain.Threshold {
	return *h.current.Load()
}

// replace installs next unless a newer or equal version is already in place.
func (h *Holder) replace(next domain.Threshold) bool {
	for {
		cur := h.current.Load()
		if next.Version <= cur.Version {
			return false
		}
		n := next
		if h.current.CompareAndSwap(cur, &n) {
			return true
		}
	}
}

// Next computes the threshold following current for a period with positive
// out of total signals. The value moves by at most cfg.Step and stays within
// [cfg.MinThreshold, cfg.MaxThreshold]. Too few signals leave it unchanged.
func Next(cfg config.FeedbackConfig, current domain.Threshold, positive, total int, now time.Time) domain.Threshold {
	if total <= 0 || total < cfg.MinSignals {
		return current
	}
	ratio := float64(positive) / float64(total)
	value := current.Value
	switch {
	case ratio > cfg.UpperBound:
		value -= cfg.Step
	case ratio < cfg.LowerBound:
		value += cfg.Step
	}
	value = math.Min(cfg.MaxThreshold, math.Max(cfg.MinThreshold, value))
	// A value restored from outside the bounds walks back one step at a time.
	value = math.Min(current.Value+cfg.Step, math.Max(current.Value-cfg.Step, value))
	// Keep adjustments on the step grid despite float accumulation.
	value = math.Round(value*1e9) / 1e9
	if value == current.Value {
		return current
	}
	return domain.Threshold{
		Version:    current.Version + 1,
		Value:      value,
		Ratio:      ratio,
		Samples:    total,
		ComputedAt: now,
	}
}
