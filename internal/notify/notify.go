// Package notify publishes insight-created events for downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notification is the event payload. It carries only the identity; consumers
// fetch the insight body themselves.
type Notification struct {
	InsightID string `json:"insight_id"`
}

// Publisher emits one event per newly created insight.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
	Close() error
}

// RedisPublisher publishes notifications on a Redis pub/sub topic.
type RedisPublisher struct {
	client *redis.Client
	topic  string
}

// NewRedisPublisher connects to Redis at addr.
func NewRedisPublisher(addr, topic string) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		topic:  topic,
	}
}

// Publish sends the JSON-encoded notification.
func (p *RedisPublisher) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.topic, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// MemoryPublisher collects notifications in memory. Used in tests and when
// no Redis address is configured.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Notification
}

// NewMemoryPublisher returns an empty in-process publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish appends the notification.
func (p *MemoryPublisher) Publish(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, n)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.events))
	copy(out, p.events)
	return out
}

// Close is a no-op.
func (p *MemoryPublisher) Close() error { return nil }
