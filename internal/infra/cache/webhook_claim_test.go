package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClaimer(t *testing.T) (*RedisClaimer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisClaimer(rdb, time.Minute), mr
}

func TestRedisClaimer_ClaimOnce(t *testing.T) {
	c, _ := newClaimer(t)
	ctx := context.Background()

	ok, err := c.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = c.Claim(ctx, "evt_2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisClaimer_Release(t *testing.T) {
	c, _ := newClaimer(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.NoError(t, c.Release(ctx, "evt_1"))

	ok, err := c.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisClaimer_Expires(t *testing.T) {
	c, mr := newClaimer(t)
	ctx := context.Background()

	_, err := c.Claim(ctx, "evt_1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	ok, err := c.Claim(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisClaimer_Down(t *testing.T) {
	c, mr := newClaimer(t)
	mr.Close()

	_, err := c.Claim(context.Background(), "evt_1")
	require.Error(t, err)
}
