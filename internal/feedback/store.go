package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/domain"
)

// Publisher shares threshold versions between service instances.
type Publisher interface {
	Publish(ctx context.Context, t domain.Threshold) error
	// Load returns the last published threshold, or nil when none exists.
	Load(ctx context.Context) (*domain.Threshold, error)
}

// Deduper reports whether a key is seen for the first time within ttl.
// Release forgets a claimed key so the signal can be submitted again.
type Deduper interface {
	FirstSeen(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type redisPublisher struct {
	client *redis.Client
	key    string
}

// NewPublisher stores thresholds under key. A nil client keeps thresholds
// process-local.
func NewPublisher(client *redis.Client, key string) Publisher {
	if client == nil {
		return noopPublisher{}
	}
	return &redisPublisher{client: client, key: key}
}

type storedThreshold struct {
	Version    int64     `json:"version"`
	Value      float64   `json:"value"`
	Ratio      float64   `json:"ratio"`
	Samples    int       `json:"samples"`
	ComputedAt time.Time `json:"computed_at"`
}

func (p *redisPublisher) Publish(ctx context.Context, t domain.Threshold) error {
	payload, err := json.Marshal(storedThreshold(t))
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key, payload, 0).Err()
}

func (p *redisPublisher) Load(ctx context.Context) (*domain.Threshold, error) {
	raw, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st storedThreshold
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	t := domain.Threshold(st)
	return &t, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.Threshold) error { return nil }

func (noopPublisher) Load(context.Context) (*domain.Threshold, error) { return nil, nil }

// MemoryDeduper remembers keys in process.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDeduper returns an empty deduper.
func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type redisDeduper struct {
	client   *redis.Client
	fallback *MemoryDeduper
	logger   *zap.Logger
}

// NewDeduper uses SETNX with a TTL, falling back to memory when Redis is
// disabled or failing.
func NewDeduper(client *redis.Client, logger *zap.Logger) Deduper {
	if client == nil {
		return NewMemoryDeduper()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisDeduper{client: client, fallback: NewMemoryDeduper(), logger: logger}
}

func (d *redisDeduper) FirstSeen(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error) {
	first, err := d.client.SetNX(ctx, key, now.Unix(), ttl).Result()
	if err != nil {
		d.logger.Warn("redis dedupe unavailable; using local state", zap.Error(err))
		return d.fallback.FirstSeen(ctx, key, now, ttl)
	}
	return first, nil
}

func (d *redisDeduper) Release(ctx context.Context, key string) error {
	_ = d.fallback.Release(ctx, key)
	return d.client.Del(ctx, key).Err()
}
