package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

var fast = Policy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fast, zap.NewNop(), "lookup", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("got %d, %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustionIsTransient(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, nil, "lookup", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("connection refused")
	})
	if !errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast, nil, "lookup", func(context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("ticket x: %w", apperrors.ErrNotFound)
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatal("permanent error must not be marked transient")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoAppliesPerTryTimeout(t *testing.T) {
	p := fast
	p.MaxTries = 2
	p.Timeout = 5 * time.Millisecond
	calls := 0
	_, err := Do(context.Background(), p, nil, "slow", func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, apperrors.ErrTransientIO) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transient deadline error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: context.Canceled, want: true},
		{err: context.DeadlineExceeded, want: false},
		{err: apperrors.NewValidationError("bad", nil), want: true},
		{err: apperrors.NewInternalError(errors.New("x")), want: false},
		{err: fmt.Errorf("x: %w", apperrors.ErrInvariantViolation), want: true},
		{err: errors.New("io"), want: false},
	}
	for _, tc := range tests {
		if got := Permanent(tc.err); got != tc.want {
			t.Errorf("Permanent(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
