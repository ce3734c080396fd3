package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linetrace/pkg/domain"
)

func TestActorRoundTrip(t *testing.T) {
	actor := Actor{ID: domain.NewUserID(), Role: domain.RoleSupervisor}
	ctx := WithActor(context.Background(), actor)

	got, ok := ActorFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, actor, got)
}

func TestActorAbsent(t *testing.T) {
	_, ok := ActorFrom(context.Background())
	assert.False(t, ok)
}

func TestActorWithNilIDTreatedAsAbsent(t *testing.T) {
	ctx := WithActor(context.Background(), Actor{Role: domain.RoleAdmin})
	_, ok := ActorFrom(ctx)
	assert.False(t, ok)
}

func TestNowPrefersInjectedTime(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))
}

func TestNowFallsBackToWallClock(t *testing.T) {
	before := time.Now()
	got := Now(context.Background())
	assert.False(t, got.Before(before))
}

func TestProvenanceValues(t *testing.T) {
	ctx := WithClientIP(context.Background(), "10.1.2.3")
	ctx = WithUserAgent(ctx, "Mozilla/5.0")
	ctx = WithRequestID(ctx, "req-123")

	assert.Equal(t, "10.1.2.3", ClientIP(ctx))
	assert.Equal(t, "Mozilla/5.0", UserAgent(ctx))
	assert.Equal(t, "req-123", RequestID(ctx))
}
