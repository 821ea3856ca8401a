package feedback

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	"github.com/spec-kit/support-iq/internal/domain"
	"github.com/spec-kit/support-iq/internal/repository"
	"github.com/spec-kit/support-iq/internal/repository/memory"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
	"github.com/spec-kit/support-iq/pkg/util/retry"
)

var now = time.Date(2026, 7, 6, 9, 0, 0, 0, time.UTC)

func feedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		Period:       7 * 24 * time.Hour,
		UpperBound:   0.90,
		LowerBound:   0.70,
		Step:         0.02,
		MinThreshold: 0.3,
		MaxThreshold: 0.95,
		MinSignals:   10,
		DedupeWindow: 10 * time.Minute,
		DedupePrefix: "test:",
	}
}

func TestNextBoundedStep(t *testing.T) {
	cfg := feedbackConfig()
	base := domain.Threshold{Version: 4, Value: 0.6}
	tests := []struct {
		name      string
		positive  int
		total     int
		current   float64
		want      float64
		versioned bool
	}{
		{name: "too strict lowers", positive: 19, total: 20, current: 0.6, want: 0.58, versioned: true},
		{name: "quality slipping raises", positive: 10, total: 20, current: 0.6, want: 0.62, versioned: true},
		{name: "inside band unchanged", positive: 16, total: 20, current: 0.6, want: 0.6},
		{name: "exactly upper bound unchanged", positive: 18, total: 20, current: 0.6, want: 0.6},
		{name: "exactly lower bound unchanged", positive: 14, total: 20, current: 0.6, want: 0.6},
		{name: "too few signals", positive: 0, total: 9, current: 0.6, want: 0.6},
		{name: "clamped at max", positive: 0, total: 20, current: 0.94, want: 0.95, versioned: true},
		{name: "already at min", positive: 20, total: 20, current: 0.3, want: 0.3},
		{name: "below min walks up one step", positive: 16, total: 20, current: 0.1, want: 0.12, versioned: true},
		{name: "above max walks down one step", positive: 16, total: 20, current: 0.99, want: 0.97, versioned: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cur := base
			cur.Value = tc.current
			next := Next(cfg, cur, tc.positive, tc.total, now)
			if math.Abs(next.Value-tc.want) > 1e-9 {
				t.Fatalf("value = %v, want %v", next.Value, tc.want)
			}
			if math.Abs(next.Value-cur.Value) > cfg.Step+1e-9 {
				t.Fatalf("moved %v, more than one step", next.Value-cur.Value)
			}
			if tc.versioned != (next.Version == cur.Version+1) {
				t.Fatalf("version = %d from %d, versioned=%v", next.Version, cur.Version, tc.versioned)
			}
			if !tc.versioned && next != cur {
				t.Fatalf("unchanged threshold should be returned as-is: %+v", next)
			}
		})
	}
}

func TestHolderReadersSeeWholeVersions(t *testing.T) {
	h := NewHolder(0.6, now)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur := h.Current()
				want := 0.6 + float64(cur.Version-1)*0.01
				if math.Abs(cur.Value-want) > 1e-9 {
					t.Errorf("torn read: %+v", cur)
					return
				}
			}
		}()
	}
	for v := int64(2); v <= 200; v++ {
		h.replace(domain.Threshold{Version: v, Value: 0.6 + float64(v-1)*0.01})
	}
	close(stop)
	wg.Wait()

	if h.replace(domain.Threshold{Version: 5, Value: 0.1}) {
		t.Fatal("older version must not replace a newer one")
	}
}

type fixture struct {
	store   *repository.Store
	adapter *Adapter
	pub     *recordingPublisher
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.Threshold
	stored    *domain.Threshold
}

func (p *recordingPublisher) Publish(_ context.Context, t domain.Threshold) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, t)
	return nil
}

func (p *recordingPublisher) Load(context.Context) (*domain.Threshold, error) {
	return p.stored, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	pub := &recordingPublisher{}
	adapter := NewAdapter(Dependencies{
		Store:     store,
		Holder:    NewHolder(0.6, now),
		Publisher: pub,
		Deduper:   NewMemoryDeduper(),
		Config:    feedbackConfig(),
		Retry:     retry.Policy{MaxTries: 1},
		Logger:    zap.NewNop(),
	})
	return &fixture{store: store, adapter: adapter, pub: pub}
}

// resolvedTicket stores an accepted ticket whose accepted draft used articles.
func (f *fixture) resolvedTicket(t *testing.T, id string, articles ...string) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.Tickets.Create(ctx, &domain.Ticket{ID: id, State: domain.TicketStateAccepted, CreatedAt: now.Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}
	draft := &domain.ResolutionDraft{ID: id + "-d1", TicketID: id, Attempt: 1, ArticleIDs: articles}
	if err := f.store.Drafts.Create(ctx, draft); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Verdicts.Create(ctx, &domain.CriticVerdict{ID: id + "-v1", DraftID: draft.ID, TicketID: id, Attempt: 1, Verdict: domain.VerdictAccept}); err != nil {
		t.Fatal(err)
	}
}

func TestIngestRulesAndDedupe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.resolvedTicket(t, "done")
	_ = f.store.Tickets.Create(ctx, &domain.Ticket{ID: "open", State: domain.TicketStateDrafting, CreatedAt: now})

	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentPositive, "email", now); err != nil || !ok {
		t.Fatalf("first signal: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentPositive, "email", now.Add(time.Minute)); err != nil || ok {
		t.Fatalf("duplicate inside window should be dropped: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentPositive, "chat", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("different channel is a distinct signal: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentPositive, "email", now.Add(11*time.Minute)); err != nil || !ok {
		t.Fatalf("same signal after window should be recorded: ok=%v err=%v", ok, err)
	}

	_, _, err := f.adapter.Ingest(ctx, "open", domain.JudgmentNegative, "email", now)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Code != "CONFLICT" {
		t.Fatalf("feedback on unresolved ticket should conflict, got %v", err)
	}
	if _, _, err := f.adapter.Ingest(ctx, "missing", domain.JudgmentNegative, "email", now); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := f.adapter.Ingest(ctx, "done", domain.Judgment("meh"), "email", now); !errors.As(err, &de) || de.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected validation error, got %v", err)
	}

	signals, _ := f.store.Feedback.ListBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if len(signals) != 3 {
		t.Fatalf("stored %d signals, want 3", len(signals))
	}
}

type flakyFeedback struct {
	repository.FeedbackRepository
	failures int
}

func (f *flakyFeedback) Create(ctx context.Context, signal *domain.FeedbackSignal) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("db down")
	}
	return f.FeedbackRepository.Create(ctx, signal)
}

func TestIngestReleasesKeyWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.resolvedTicket(t, "done")
	f.store.Feedback = &flakyFeedback{FeedbackRepository: f.store.Feedback, failures: 1}

	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentNegative, "email", now); err == nil || ok {
		t.Fatalf("failed write should surface: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentNegative, "email", now.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("resubmission after a failed write should be recorded: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.adapter.Ingest(ctx, "done", domain.JudgmentNegative, "email", now.Add(2*time.Minute)); err != nil || ok {
		t.Fatalf("stored signal should still dedupe: ok=%v err=%v", ok, err)
	}

	signals, _ := f.store.Feedback.ListBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if len(signals) != 1 {
		t.Fatalf("stored %d signals, want 1", len(signals))
	}
}

func TestMemoryDeduperRelease(t *testing.T) {
	d := NewMemoryDeduper()
	ctx := context.Background()
	if first, _ := d.FirstSeen(ctx, "k", now, time.Minute); !first {
		t.Fatal("first claim should succeed")
	}
	if err := d.Release(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if first, _ := d.FirstSeen(ctx, "k", now, time.Minute); !first {
		t.Fatal("released key should be claimable again")
	}
}

func TestCycleLowersThresholdAndReweights(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, a := range []domain.KBArticle{{ID: "kb-good", Weight: 1}, {ID: "kb-bad", Weight: 1}} {
		article := a
		_ = f.store.Knowledge.UpsertArticle(ctx, &article)
	}
	f.resolvedTicket(t, "t-good", "kb-good")
	f.resolvedTicket(t, "t-bad", "kb-bad", "kb-deleted")

	// 19 positive out of 20 in the period, plus one stale signal outside it.
	for i := 0; i < 19; i++ {
		_ = f.store.Feedback.Create(ctx, &domain.FeedbackSignal{ID: "g" + string(rune('a'+i)), TicketID: "t-good", Judgment: domain.JudgmentPositive, ReceivedAt: now.Add(-time.Duration(i+1) * time.Hour)})
	}
	_ = f.store.Feedback.Create(ctx, &domain.FeedbackSignal{ID: "b1", TicketID: "t-bad", Judgment: domain.JudgmentNegative, ReceivedAt: now.Add(-time.Hour)})
	_ = f.store.Feedback.Create(ctx, &domain.FeedbackSignal{ID: "old", TicketID: "t-bad", Judgment: domain.JudgmentNegative, ReceivedAt: now.Add(-8 * 24 * time.Hour)})

	before := f.adapter.Threshold()
	res, err := f.adapter.Cycle(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || res.Total != 20 || res.Positive != 19 {
		t.Fatalf("unexpected result %+v", res)
	}
	after := f.adapter.Threshold()
	if after.Version != before.Version+1 || math.Abs(after.Value-0.58) > 1e-9 {
		t.Fatalf("threshold = %+v, want v%d 0.58", after, before.Version+1)
	}
	if len(f.pub.published) != 1 || f.pub.published[0] != after {
		t.Fatalf("published %+v", f.pub.published)
	}
	if res.ArticlesUpdated != 2 {
		t.Fatalf("articles updated = %d, want 2", res.ArticlesUpdated)
	}

	good, _ := f.store.Knowledge.GetArticle(ctx, "kb-good")
	bad, _ := f.store.Knowledge.GetArticle(ctx, "kb-bad")
	if math.Abs(good.Weight-ArticleWeight(19, 19)) > 1e-9 || math.Abs(bad.Weight-ArticleWeight(0, 1)) > 1e-9 {
		t.Fatalf("weights good=%v bad=%v", good.Weight, bad.Weight)
	}
	if !(good.Weight > 1 && bad.Weight < 1) {
		t.Fatalf("weights should move away from neutral: good=%v bad=%v", good.Weight, bad.Weight)
	}

	signals, _ := f.store.Feedback.ListBetween(ctx, now.Add(-30*24*time.Hour), now)
	if len(signals) != 21 {
		t.Fatal("cycle must not modify feedback history")
	}
}

func TestRestoreAdoptsNewerPublishedVersion(t *testing.T) {
	f := newFixture(t)
	f.pub.stored = &domain.Threshold{Version: 7, Value: 0.7}
	if err := f.adapter.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.adapter.Threshold(); got.Version != 7 || got.Value != 0.7 {
		t.Fatalf("threshold = %+v", got)
	}
}

func TestArticleWeightNeutral(t *testing.T) {
	if ArticleWeight(0, 0) != 1 {
		t.Fatalf("no feedback should be neutral, got %v", ArticleWeight(0, 0))
	}
}

func TestRedisDeduperFallsBackWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	d := NewDeduper(client, zap.NewNop())
	ctx := context.Background()
	first, err := d.FirstSeen(ctx, "k", now, time.Minute)
	if err != nil || !first {
		t.Fatalf("first: %v %v", first, err)
	}
	again, err := d.FirstSeen(ctx, "k", now, time.Minute)
	if err != nil || again {
		t.Fatalf("second: %v %v", again, err)
	}
}

func TestNilRedisClientDefaults(t *testing.T) {
	if _, ok := NewDeduper(nil, nil).(*MemoryDeduper); !ok {
		t.Fatal("nil client should use the memory deduper")
	}
	p := NewPublisher(nil, "k")
	if got, err := p.Load(context.Background()); got != nil || err != nil {
		t.Fatalf("noop publisher load: %v %v", got, err)
	}
}
