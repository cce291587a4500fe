package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	fame "github.com/fame-ai/orchestrator"
)

// RedisStore persists session turns to Redis so multiple orchestrator
// processes can share conversational context. Namespaced keys,
// JSON-serialized turn lists, TTL-based reaping in place of the
// in-memory store's explicitly called Reap.
type RedisStore struct {
	client      *redis.Client
	namespace   string
	nTurns      int
	idleTimeout time.Duration
	mu          sync.Mutex
}

// NewRedisStore connects to redisURL and pings it once so a
// misconfigured URL fails at construction, not on the first Append.
func NewRedisStore(redisURL, namespace string, nTurns int, idleTimeout time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("session: invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: connect to Redis: %w", err)
	}

	if namespace == "" {
		namespace = "fame:session"
	}
	if nTurns <= 0 {
		nTurns = 5
	}
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}

	return &RedisStore{
		client:      client,
		namespace:   namespace,
		nTurns:      nTurns,
		idleTimeout: idleTimeout,
	}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("%s:%s", s.namespace, sessionID)
}

func (s *RedisStore) Append(sessionID string, turn fame.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	turns := s.load(ctx, sessionID)

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	turns = append(turns, turn)
	if len(turns) > s.nTurns {
		turns = turns[len(turns)-s.nTurns:]
	}

	s.save(ctx, sessionID, turns)
}

func (s *RedisStore) Recent(sessionID string, k int) []fame.Turn {
	turns := s.load(context.Background(), sessionID)
	if k <= 0 || k > len(turns) {
		k = len(turns)
	}
	return turns[len(turns)-k:]
}

func (s *RedisStore) Clear(sessionID string) {
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// Reap is a no-op: Redis TTL on every key (set in save) expires idle
// sessions without needing a background scan.
func (s *RedisStore) Reap(now time.Time) {}

func (s *RedisStore) load(ctx context.Context, sessionID string) []fame.Turn {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return nil
	}
	var turns []fame.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil
	}
	return turns
}

func (s *RedisStore) save(ctx context.Context, sessionID string, turns []fame.Turn) {
	data, err := json.Marshal(turns)
	if err != nil {
		return
	}
	_ = s.client.Set(ctx, s.key(sessionID), data, s.idleTimeout).Err()
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
