package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAuditSink persists audit entries to a Redis list, for
// installations that want audit durability beyond the in-memory ring
// the gate keeps as the floor. Entries are pushed to a namespaced list
// and trimmed to maxEntries so the list itself stays bounded.
type RedisAuditSink struct {
	client     *redis.Client
	namespace  string
	maxEntries int64
}

// NewRedisAuditSink connects to redisURL and pings it once so
// misconfiguration surfaces at construction time rather than on the
// first audited decision.
func NewRedisAuditSink(redisURL, namespace string, maxEntries int64) (*RedisAuditSink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("safety: invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("safety: connect to Redis: %w", err)
	}

	if namespace == "" {
		namespace = "fame:audit"
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	return &RedisAuditSink{client: client, namespace: namespace, maxEntries: maxEntries}, nil
}

// Record appends entry to the namespaced audit list. Errors are
// swallowed and not logged (the in-memory ring already has the record).
// Record runs synchronously inside the Gate's decision, so the decision
// waits for the Redis round-trip.
func (s *RedisAuditSink) Record(ctx context.Context, entry AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.namespace, data)
	pipe.LTrim(ctx, s.namespace, 0, s.maxEntries-1)
	_, _ = pipe.Exec(ctx)
}

// Close releases the underlying Redis client.
func (s *RedisAuditSink) Close() error {
	return s.client.Close()
}
