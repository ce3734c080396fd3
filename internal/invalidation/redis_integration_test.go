//go:build integration

package invalidation_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linetrace/internal/invalidation"
	"linetrace/pkg/testutil/containers"
)

func TestRedisEmitterPublishesTags(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redis := containers.NewRedisContainer(t)
	ctx := context.Background()

	sub := redis.Client.Subscribe(ctx, invalidation.Channel)
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err, "subscription must be established before publishing")

	emitter := invalidation.NewRedisEmitter(redis.Client)
	emitter.Invalidate(ctx, invalidation.Tags("ProductionLine", "line-1")...)

	received := make([]invalidation.Event, 0, 2)
	deadline := time.After(5 * time.Second)
	for len(received) < 2 {
		select {
		case msg := <-sub.Channel():
			var event invalidation.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
			received = append(received, event)
		case <-deadline:
			t.Fatalf("timed out waiting for invalidation events, got %d", len(received))
		}
	}

	require.Equal(t, "ProductionLine", received[0].EntityTag)
	require.Equal(t, "ProductionLine:line-1", received[1].EntityTag)
}
