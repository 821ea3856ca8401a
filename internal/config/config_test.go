package config

import (
	"errors"
	"testing"
	"time"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.Pipeline.IOTimeout != 5*time.Second {
		t.Fatalf("io timeout = %v", cfg.Pipeline.IOTimeout)
	}
	if cfg.Critic.InitialThreshold < cfg.Feedback.MinThreshold || cfg.Critic.InitialThreshold > cfg.Feedback.MaxThreshold {
		t.Fatalf("default threshold %v outside [%v,%v]", cfg.Critic.InitialThreshold, cfg.Feedback.MinThreshold, cfg.Feedback.MaxThreshold)
	}
}

func TestLoadRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "initial threshold below feedback min", env: map[string]string{"CRITIC_INITIAL_THRESHOLD": "0.1"}},
		{name: "initial threshold above feedback max", env: map[string]string{"CRITIC_INITIAL_THRESHOLD": "0.99"}},
		{name: "malformed feedback step", env: map[string]string{"FEEDBACK_STEP": "two-percent"}},
		{name: "malformed feedback bound", env: map[string]string{"FEEDBACK_UPPER_BOUND": "high"}},
		{name: "malformed threshold bound", env: map[string]string{"FEEDBACK_MIN_THRESHOLD": "0,3"}},
		{name: "malformed triage weight", env: map[string]string{"TRIAGE_WEIGHT_SLA": "x"}},
		{name: "non-positive io timeout", env: map[string]string{"PIPELINE_IO_TIMEOUT": "0s"}},
		{name: "inverted feedback bounds", env: map[string]string{"FEEDBACK_LOWER_BOUND": "0.95"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, apperrors.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestLoadAcceptsThresholdInsideFeedbackRange(t *testing.T) {
	t.Setenv("CRITIC_INITIAL_THRESHOLD", "0.4")
	t.Setenv("FEEDBACK_MIN_THRESHOLD", "0.2")
	t.Setenv("PIPELINE_IO_TIMEOUT", "750ms")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Critic.InitialThreshold != 0.4 || cfg.Feedback.MinThreshold != 0.2 {
		t.Fatalf("parsed %v %v", cfg.Critic.InitialThreshold, cfg.Feedback.MinThreshold)
	}
	if cfg.Pipeline.IOTimeout != 750*time.Millisecond {
		t.Fatalf("io timeout = %v", cfg.Pipeline.IOTimeout)
	}
}
