// Package dns publishes "refresh this name" signals for the zone publisher.
package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueKey is the Redis list the zone publisher consumes.
const QueueKey = "dns:refresh"

// Refresh is one queued signal.
type Refresh struct {
	Name       string    `json:"name"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

type listPusher interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisQueue appends refresh signals to a Redis list.
type RedisQueue struct {
	client listPusher
	key    string
	now    func() time.Time
}

// NewRedisQueue wraps an existing client. An empty key means QueueKey.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return newRedisQueue(client, key)
}

func newRedisQueue(client listPusher, key string) *RedisQueue {
	if key == "" {
		key = QueueKey
	}
	return &RedisQueue{client: client, key: key, now: time.Now}
}

// Enqueue pushes one signal per name.
func (q *RedisQueue) Enqueue(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	vals := make([]any, 0, len(names))
	at := q.now().UTC()
	for _, n := range names {
		b, err := json.Marshal(Refresh{Name: n, EnqueuedAt: at})
		if err != nil {
			return fmt.Errorf("marshal refresh: %w", err)
		}
		vals = append(vals, b)
	}
	if err := q.client.RPush(ctx, q.key, vals...).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return nil
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Memory records signals in process. Used when no Redis is configured.
type Memory struct {
	mu    sync.Mutex
	names []string
}

func (m *Memory) Enqueue(_ context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names = append(m.names, names...)
	return nil
}

// Names returns every name enqueued so far.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}
