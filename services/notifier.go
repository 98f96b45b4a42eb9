package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Topics. Clan channels are per-clan so members only see their own traffic.
const (
	TopicGlobalReports  = "eco:global:reports"
	TopicGlobalMissions = "eco:global:missions"
	TopicGlobalMapPins  = "eco:global:map_pins"
)

// ClanTopic names the per-clan notification channel.
func ClanTopic(clanID string) string {
	return "eco:clan:" + clanID
}

// Notifier is a fire-and-forget broadcast capability. The engine never blocks
// on delivery and never treats a delivery failure as a domain error.
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any)
}

// RedisNotifier publishes events over Redis pub/sub.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(opts *redis.Options) *RedisNotifier {
	return &RedisNotifier{rdb: redis.NewClient(opts)}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ notifier: marshal failed for %s: %v", topic, err)
		return
	}
	if err := n.rdb.Publish(ctx, topic, body).Err(); err != nil {
		log.Printf("⚠️ notifier: publish to %s failed: %v", topic, err)
	}
}

// Ping verifies Redis connectivity. Useful for health checks.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection. Implements io.Closer.
func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}

// NoopNotifier drops everything. Used in tests and when Redis is not
// configured.
type NoopNotifier struct{}

func (NoopNotifier) Publish(context.Context, string, any) {}
