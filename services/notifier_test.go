// services/notifier_test.go
package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifierPublish(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	notifier := NewRedisNotifier(&redis.Options{Addr: mr.Addr()})
	defer notifier.Close()
	require.NoError(t, notifier.Ping(ctx))

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	pubsub := sub.Subscribe(ctx, ClanTopic("clan-1"))
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	notifier.Publish(ctx, ClanTopic("clan-1"), map[string]any{
		"event":     "new_report",
		"report_id": "r-1",
	})

	select {
	case msg := <-pubsub.Channel():
		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
		assert.Equal(t, "new_report", payload["event"])
		assert.Equal(t, "r-1", payload["report_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestRedisNotifierSwallowsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	notifier := NewRedisNotifier(&redis.Options{Addr: mr.Addr()})
	defer notifier.Close()

	mr.Close()
	// Fire-and-forget: a dead broker must not panic or block the caller.
	notifier.Publish(context.Background(), TopicGlobalReports, map[string]any{"event": "x"})
}
