package invalidation

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"linetrace/internal/platform/metrics"
)

// Channel is the pub/sub channel the external cache layer subscribes to.
const Channel = "linetrace.invalidation"

// RedisEmitter publishes events on a Redis pub/sub channel. Failures are
// logged and counted, never surfaced: the mutation already committed and a
// missed invalidation only shortens cache freshness.
type RedisEmitter struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// RedisOption configures a RedisEmitter.
type RedisOption func(*RedisEmitter)

func WithLogger(logger *slog.Logger) RedisOption {
	return func(e *RedisEmitter) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) RedisOption {
	return func(e *RedisEmitter) { e.metrics = m }
}

// NewRedisEmitter constructs a RedisEmitter over an established client.
func NewRedisEmitter(client redis.UniversalClient, opts ...RedisOption) *RedisEmitter {
	e := &RedisEmitter{
		client: client,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *RedisEmitter) Invalidate(ctx context.Context, events ...Event) {
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			e.logger.ErrorContext(ctx, "marshal invalidation event", "error", err)
			continue
		}
		if err := e.client.Publish(ctx, Channel, payload).Err(); err != nil {
			e.logger.WarnContext(ctx, "publish invalidation event",
				"entity_tag", event.EntityTag,
				"error", err,
			)
			continue
		}
		e.metrics.IncInvalidation()
	}
}
