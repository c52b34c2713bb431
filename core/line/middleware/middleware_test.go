package middleware

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/linephoto/core/line/events"
	"github.com/m3rciful/linephoto/core/line/router"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func counting(n *atomic.Int32) router.HandlerFunc {
	return func(context.Context, *router.Request) error {
		n.Add(1)
		return nil
	}
}

func req(id, user string, kind events.Kind) *router.Request {
	return &router.Request{Event: events.Event{ID: id, UserID: user, Kind: kind, Type: events.TypeMessage}}
}

func TestDedupeDropsRepeatedEventID(t *testing.T) {
	mr, rdb := newRedis(t)
	var n atomic.Int32
	h := Dedupe(DedupeOptions{Client: rdb, TTL: time.Minute})(counting(&n))

	require.NoError(t, h(context.Background(), req("evt-1", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("evt-1", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("evt-2", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("", "U1", events.KindText)))

	assert.Equal(t, int32(3), n.Load())
	assert.True(t, mr.Exists("line:evt:evt-1"))

	mr.FastForward(2 * time.Minute)
	require.NoError(t, h(context.Background(), req("evt-1", "U1", events.KindText)))
	assert.Equal(t, int32(4), n.Load())
}

func TestDedupeFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	var n atomic.Int32
	h := Dedupe(DedupeOptions{Client: rdb})(counting(&n))
	require.NoError(t, h(context.Background(), req("evt-1", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("evt-1", "U1", events.KindText)))
	assert.Equal(t, int32(2), n.Load())
}

func TestRateLimitPerUser(t *testing.T) {
	mr, rdb := newRedis(t)
	var n, limited atomic.Int32
	h := RateLimit(RateLimitOptions{
		Client:    rdb,
		Interval:  time.Second,
		OnLimited: counting(&limited),
	})(counting(&n))

	ctx := context.Background()
	require.NoError(t, h(ctx, req("a", "U1", events.KindText)))
	require.NoError(t, h(ctx, req("b", "U1", events.KindText)))
	require.NoError(t, h(ctx, req("c", "U2", events.KindText)))
	assert.Equal(t, int32(2), n.Load())
	assert.Equal(t, int32(1), limited.Load())

	mr.FastForward(2 * time.Second)
	require.NoError(t, h(ctx, req("d", "U1", events.KindText)))
	assert.Equal(t, int32(3), n.Load())
}

func TestRateLimitKeyAlwaysExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	var n atomic.Int32
	h := RateLimit(RateLimitOptions{Client: rdb, Interval: 1500 * time.Millisecond})(counting(&n))

	ctx := context.Background()
	require.NoError(t, h(ctx, req("a", "U1", events.KindText)))
	require.True(t, mr.Exists(rateLimitKey("U1")))
	assert.Equal(t, 1500*time.Millisecond, mr.TTL(rateLimitKey("U1")))

	// A limited event must not extend the window.
	require.NoError(t, h(ctx, req("b", "U1", events.KindText)))
	assert.Equal(t, 1500*time.Millisecond, mr.TTL(rateLimitKey("U1")))

	mr.FastForward(2 * time.Second)
	assert.False(t, mr.Exists(rateLimitKey("U1")))
	require.NoError(t, h(ctx, req("c", "U1", events.KindText)))
	assert.Equal(t, int32(2), n.Load())
}

func TestRateLimitFailsOpenWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	var n atomic.Int32
	h := RateLimit(RateLimitOptions{Client: rdb, Interval: time.Minute})(counting(&n))

	require.NoError(t, h(context.Background(), req("a", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("b", "U1", events.KindText)))
	assert.Equal(t, int32(2), n.Load())
}

func TestRateLimitExcludedKind(t *testing.T) {
	_, rdb := newRedis(t)
	var n atomic.Int32
	h := RateLimit(RateLimitOptions{
		Client:   rdb,
		Interval: time.Minute,
		Exclude:  map[events.Kind]struct{}{events.KindLocation: {}},
	})(counting(&n))

	ctx := context.Background()
	require.NoError(t, h(ctx, req("a", "U1", events.KindLocation)))
	require.NoError(t, h(ctx, req("b", "U1", events.KindLocation)))
	assert.Equal(t, int32(2), n.Load())
}

func TestRateLimitDisabledWithoutClient(t *testing.T) {
	var n atomic.Int32
	h := RateLimit(RateLimitOptions{Interval: time.Minute})(counting(&n))
	require.NoError(t, h(context.Background(), req("a", "U1", events.KindText)))
	require.NoError(t, h(context.Background(), req("b", "U1", events.KindText)))
	assert.Equal(t, int32(2), n.Load())
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := Recover(func(context.Context, *router.Request) error { panic("boom") })
	err := h(context.Background(), req("a", "U1", events.KindText))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMetricsPassesErrorThrough(t *testing.T) {
	want := errors.New("fail")
	h := Metrics(Logger(func(context.Context, *router.Request) error { return want }))
	assert.ErrorIs(t, h(context.Background(), req("a", "U1", events.KindImage)), want)
}
