package query

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev365-portal/internal/clock"
	"dev365-portal/internal/redis"
)

// afterGetHook runs fn once, right after the first GET the client sends
type afterGetHook struct {
	fired atomic.Bool
	fn    func(ctx context.Context)
}

func (h *afterGetHook) BeforeProcess(ctx context.Context, _ goredis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *afterGetHook) AfterProcess(ctx context.Context, cmd goredis.Cmder) error {
	if cmd.Name() == "get" && h.fired.CompareAndSwap(false, true) {
		h.fn(ctx)
	}
	return nil
}

func (h *afterGetHook) BeforeProcessPipeline(ctx context.Context, _ []goredis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *afterGetHook) AfterProcessPipeline(context.Context, []goredis.Cmder) error {
	return nil
}

func newMiniStore(t *testing.T, mr *miniredis.Miniredis, hooks ...goredis.Hook) *RedisStore {
	t.Helper()
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	for _, h := range hooks {
		raw.AddHook(h)
	}
	t.Cleanup(func() { _ = raw.Close() })
	return NewRedisStore(redis.NewClientFromRaw(raw), time.Hour)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	store := newMiniStore(t, mr)
	ctx := context.Background()
	key := RequestsKey("u1").String()

	require.NoError(t, store.Set(ctx, key, &Entry{Data: []byte(`["a"]`), FetchedAt: testEpoch, LastAccess: testEpoch}))
	require.NoError(t, store.Touch(ctx, key, testEpoch.Add(time.Minute)))

	e, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["a"]`, string(e.Data))
	assert.True(t, e.LastAccess.Equal(testEpoch.Add(time.Minute)))
	assert.False(t, e.Invalidated)

	require.NoError(t, store.MarkInvalidated(ctx, key))
	e, _, err = store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, e.Invalidated)

	// touching or marking a missing key writes nothing
	require.NoError(t, store.Touch(ctx, "u1|missing", testEpoch))
	require.NoError(t, store.MarkInvalidated(ctx, "u1|missing"))
	_, ok, err = store.Get(ctx, "u1|missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTouchKeepsConcurrentInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	key := RequestsKey("u1").String()

	other := newMiniStore(t, mr)
	hook := &afterGetHook{fn: func(ctx context.Context) {
		require.NoError(t, other.MarkInvalidated(ctx, key))
	}}
	store := newMiniStore(t, mr, hook)
	require.NoError(t, other.Set(ctx, key, &Entry{Data: []byte(`"v"`), FetchedAt: testEpoch, LastAccess: testEpoch}))

	// the mark lands between Touch's read and its write
	require.NoError(t, store.Touch(ctx, key, testEpoch.Add(time.Minute)))
	require.True(t, hook.fired.Load())

	e, ok, err := other.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, e.Invalidated)
}

func TestRedisBackedCacheRefetchesAfterInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	key := WebsitesKey("u1")

	shared := newMiniStore(t, mr)
	a := NewCache(WithClock(clock.NewFake(testEpoch)), WithStaleTime(time.Hour), WithStore(shared))
	b := NewCache(WithClock(clock.NewFake(testEpoch)), WithStaleTime(time.Hour), WithStore(newMiniStore(t, mr)))

	var calls int32
	_, err := Fetch(ctx, a, key, counter(&calls, "v"))
	require.NoError(t, err)
	_, err = Fetch(ctx, b, key, counter(&calls, "v"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls)

	require.NoError(t, a.Invalidate(ctx, key))
	assert.False(t, b.IsFresh(ctx, key))
	_, err = Fetch(ctx, b, key, counter(&calls, "v"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}
