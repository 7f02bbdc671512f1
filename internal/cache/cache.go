// Package cache provides a Redis read-through cache for single entities.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Metrics counts cache lookups by entity and result.
type Metrics struct {
	lookups *prometheus.CounterVec
}

// NewMetrics registers the cache counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_cache_lookups_total",
			Help: "Entity cache lookups by entity and result.",
		}, []string{"entity", "result"}),
	}
	reg.MustRegister(m.lookups)
	return m
}

func (m *Metrics) observe(entity, result string) {
	if m != nil {
		m.lookups.WithLabelValues(entity, result).Inc()
	}
}

// DefaultFence is how long an invalidated id refuses new entries.
const DefaultFence = 30 * time.Second

// setIfUnfenced writes KEYS[1] only when it is absent and KEYS[2] (the
// invalidation fence) is not set.
var setIfUnfenced = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
if redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2], "NX") then
	return 1
end
return 0
`)

// Store caches JSON encodings of T under "<entity>:<id>".
//
// A fill that loaded its value before a concurrent mutation must not outlive
// that mutation's invalidation, so Invalidate leaves a fence behind and Set
// never overwrites an entry or writes through a fence. The fence should be at
// least as long as the slowest read that can end in a Set.
type Store[T any] struct {
	client  redis.Cmdable
	entity  string
	ttl     time.Duration
	fence   time.Duration
	metrics *Metrics
}

// New creates a Store for entity. Entries expire after ttl.
func New[T any](client redis.Cmdable, entity string, ttl time.Duration, metrics *Metrics) *Store[T] {
	return &Store[T]{client: client, entity: entity, ttl: ttl, fence: DefaultFence, metrics: metrics}
}

// WithFence sets how long Invalidate blocks refills of an id.
func (s *Store[T]) WithFence(d time.Duration) *Store[T] {
	if d > 0 {
		s.fence = d
	}
	return s
}

func (s *Store[T]) key(id string) string {
	return s.entity + ":" + id
}

func (s *Store[T]) fenceKey(id string) string {
	return s.entity + ":" + id + ":fence"
}

// Get returns the cached value for id. A miss returns (nil, nil).
func (s *Store[T]) Get(ctx context.Context, id string) (*T, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.metrics.observe(s.entity, "miss")
			return nil, nil
		}
		s.metrics.observe(s.entity, "error")
		return nil, fmt.Errorf("redis get %s: %w", s.entity, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.metrics.observe(s.entity, "error")
		return nil, fmt.Errorf("unmarshal cached %s: %w", s.entity, err)
	}
	s.metrics.observe(s.entity, "hit")
	return &v, nil
}

// Set stores v under id with the configured TTL. It is a no-op when an
// entry already exists or id was invalidated within the fence window.
func (s *Store[T]) Set(ctx context.Context, id string, v *T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.entity, err)
	}
	keys := []string{s.key(id), s.fenceKey(id)}
	if err := setIfUnfenced.Run(ctx, s.client, keys, data, s.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.entity, err)
	}
	return nil
}

// Invalidate drops the entry for id and fences it against refills.
func (s *Store[T]) Invalidate(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.Set(ctx, s.fenceKey(id), 1, s.fence)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate %s: %w", s.entity, err)
	}
	return nil
}
