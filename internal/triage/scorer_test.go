package triage

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/repository/memory"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func testConfig() config.TriageConfig {
	return config.TriageConfig{
		TierWeight:       1.0 / 3,
		SLAWeight:        1.0 / 3,
		RecurrenceWeight: 1.0 / 3,
		RecurrenceHalf:   5,
		SimilarLimit:     20,
		SimilarMinScore:  0.3,
		DefaultSLAHours:  72,
		TierScores: map[string]float64{
			"enterprise": 1.0, "gold": 0.6, "pro": 0.4, "free": 0.1,
		},
	}
}

type failingTickets struct {
	repository.TicketRepository
	calls int
}

func (f *failingTickets) ListSimilar(context.Context, string, string, int) ([]domain.Scored[domain.Ticket], error) {
	f.calls++
	return nil, errors.New("search index unreachable")
}

func newScorer(store *repository.Store) *Scorer {
	return NewScorer(Dependencies{
		Tickets:   store.Tickets,
		Knowledge: store.Knowledge,
		Config:    testConfig(),
		Retry:     retry.Policy{MaxTries: 2, InitialInterval: time.Millisecond},
		Logger:    zap.NewNop(),
	})
}

func TestScoreGoldTicketMatchesWeightedSum(t *testing.T) {
	store := memory.NewStore()
	risk := 0.9
	ticket := domain.Ticket{ID: "T1", CustomerID: "c", Tier: domain.TierGold, Body: "invoice total wrong", SLARisk: &risk, CreatedAt: now}

	score, err := newScorer(store).Score(context.Background(), ticket, now)
	if err != nil {
		t.Fatal(err)
	}
	want := 0.6/3 + 0.9/3
	if math.Abs(score.Priority-want) > 1e-9 {
		t.Fatalf("priority = %v, want %v", score.Priority, want)
	}
	if score.Degraded {
		t.Fatal("score should not be degraded")
	}
	if score.Label != domain.PriorityMedium {
		t.Fatalf("label = %s, want MEDIUM", score.Label)
	}
}

func TestScoreCountsSimilarTickets(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, id := range []string{"p1", "p2", "p3"} {
		_ = store.Tickets.Create(ctx, &domain.Ticket{ID: id, Body: "checkout payment failed card declined", CreatedAt: now.Add(-time.Hour)})
	}
	_ = store.Tickets.Create(ctx, &domain.Ticket{ID: "p4", Body: "how do I export reports", CreatedAt: now.Add(-time.Hour)})
	_ = store.Knowledge.UpsertProfile(ctx, &domain.CustomerProfile{CustomerID: "c", Tier: domain.TierPro, SLAHours: 8})

	ticket := domain.Ticket{ID: "new", CustomerID: "c", Body: "payment failed at checkout, card declined", CreatedAt: now.Add(-4 * time.Hour)}
	score, err := newScorer(store).Score(ctx, ticket, now)
	if err != nil {
		t.Fatal(err)
	}
	if score.RecurrenceCount != 3 {
		t.Fatalf("recurrence count = %d, want 3", score.RecurrenceCount)
	}
	if math.Abs(score.RecurrenceScore-3.0/8.0) > 1e-9 {
		t.Fatalf("recurrence score = %v, want 0.375", score.RecurrenceScore)
	}
	if math.Abs(score.SLARisk-0.5) > 1e-9 {
		t.Fatalf("sla risk = %v, want 0.5 (4h of 8h)", score.SLARisk)
	}
	if score.TierScore != 0.4 {
		t.Fatalf("tier score from profile = %v, want 0.4", score.TierScore)
	}
	want := score.Weights.Composite(score.TierScore, score.SLARisk, score.RecurrenceScore)
	if math.Abs(score.Priority-want) > 1e-12 {
		t.Fatalf("priority %v is not the weighted sum %v", score.Priority, want)
	}
}

func TestScoreDegradesToTierOnly(t *testing.T) {
	store := memory.NewStore()
	failing := &failingTickets{TicketRepository: store.Tickets}
	store.Tickets = failing

	risk := 0.9
	ticket := domain.Ticket{ID: "T", Tier: domain.TierEnterprise, Body: "outage", SLARisk: &risk, CreatedAt: now}
	score, err := newScorer(store).Score(context.Background(), ticket, now)
	if err != nil {
		t.Fatal(err)
	}
	if !score.Degraded {
		t.Fatal("expected degraded score")
	}
	if score.SLARisk != 0 || score.RecurrenceScore != 0 {
		t.Fatalf("degraded score must be tier-only: %+v", score)
	}
	if math.Abs(score.Priority-1.0/3) > 1e-9 {
		t.Fatalf("priority = %v, want w_tier*1.0", score.Priority)
	}
	if failing.calls != 2 {
		t.Fatalf("similarity lookup tried %d times, want 2", failing.calls)
	}
}

func TestScoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newScorer(memory.NewStore()).Score(ctx, domain.Ticket{ID: "x", Body: "hello world"}, now)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNormalisersAreMonotonic(t *testing.T) {
	rec := Saturating(5)
	prev := -1.0
	for n := 0; n <= 200; n++ {
		v := rec(n)
		if v < prev || v < 0 || v >= 1 {
			t.Fatalf("recurrence(%d) = %v not monotone within [0,1)", n, v)
		}
		prev = v
	}
	if rec(5) != 0.5 {
		t.Fatalf("recurrence(half) = %v, want 0.5", rec(5))
	}

	prev = -1
	for h := 0; h <= 10; h++ {
		v := LinearSLARisk(time.Duration(h)*time.Hour, 8*time.Hour)
		if v < prev || v > 1 {
			t.Fatalf("sla risk at %dh = %v not monotone within [0,1]", h, v)
		}
		prev = v
	}
	if LinearSLARisk(time.Hour, 0) != 1 {
		t.Fatal("zero budget should be full risk")
	}
}

func TestLabelBoundaries(t *testing.T) {
	tests := []struct {
		p    float64
		want domain.PriorityLabel
	}{
		{0.85, domain.PriorityCritical},
		{0.8499, domain.PriorityHigh},
		{0.65, domain.PriorityHigh},
		{0.40, domain.PriorityMedium},
		{0.39, domain.PriorityLow},
	}
	for _, tc := range tests {
		if got := domain.LabelFor(tc.p); got != tc.want {
			t.Errorf("LabelFor(%v) = %s, want %s", tc.p, got, tc.want)
		}
	}
}

func TestTierOnlyIsDegraded(t *testing.T) {
	s := newScorer(memory.NewStore())
	score := s.TierOnly(domain.Ticket{ID: "T9", Tier: domain.TierEnterprise}, now)
	if !score.Degraded || score.SLARisk != 0 || score.RecurrenceScore != 0 {
		t.Fatalf("unexpected score %+v", score)
	}
	if math.Abs(score.Priority-1.0/3) > 1e-9 || score.Label != domain.PriorityLow {
		t.Fatalf("priority = %v label = %s", score.Priority, score.Label)
	}
}
