package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewGuard(client, "sender", time.Hour), mr
}

func TestFirstDelivery(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	first, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, second)
}

func TestDistinctMessagesIndependent(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	first, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	other, err := g.FirstDelivery(ctx, "msg-2")
	require.NoError(t, err)
	assert.True(t, other)
}

func TestForgetAllowsRetry(t *testing.T) {
	g, _ := newTestGuard(t)
	ctx := context.Background()

	_, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)

	require.NoError(t, g.Forget(ctx, "msg-1"))

	again, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, again)
}

func TestTTLExpiry(t *testing.T) {
	g, mr := newTestGuard(t)
	ctx := context.Background()

	_, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	again, err := g.FirstDelivery(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, again)
}
