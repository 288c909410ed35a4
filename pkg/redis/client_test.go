package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
)

func TestSetNXFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}
	lock := client.LockKey("unlock-reaper")

	ok, err := client.SetNX(ctx, lock, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, lock, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := client.Get(ctx, lock)
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	require.NoError(t, client.Del(ctx, lock))
	_, err = client.Get(ctx, lock)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestDelIfValueOnlyRemovesMatchingOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}
	lock := client.LockKey("cron-worker:local")

	_, err := client.SetNX(ctx, lock, "owner-a", time.Minute)
	require.NoError(t, err)

	removed, err := client.DelIfValue(ctx, lock, "owner-b")
	require.NoError(t, err)
	assert.False(t, removed, "foreign owner must not release")

	removed, err = client.DelIfValue(ctx, lock, "owner-a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = client.DelIfValue(ctx, lock, "owner-a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCreatorRevenueCountsCents(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newFakeRedis()}

	require.NoError(t, client.IncrCreatorRevenue(ctx, "creator-1", decimal.RequireFromString("2.39")))
	require.NoError(t, client.IncrCreatorRevenue(ctx, "creator-1", decimal.RequireFromString("4.005")))

	stats, err := client.CreatorStats(ctx, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Unlocks)
	assert.Equal(t, "6.40", stats.Earnings.StringFixed(2))

	empty, err := client.CreatorStats(ctx, "creator-2")
	require.NoError(t, err)
	assert.Zero(t, empty.Unlocks)
	assert.True(t, empty.Earnings.IsZero())
}

func TestCreatorStatsRejectsCorruptHash(t *testing.T) {
	fake := newFakeRedis()
	client := &Client{store: fake}
	fake.hash(client.CreatorStatsKey("c1"))[fieldEarningsCents] = "1.5"

	_, err := client.CreatorStats(context.Background(), "c1")
	assert.Error(t, err)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	assert.ErrorIs(t, client.IncrCreatorRevenue(ctx, "c", decimal.NewFromInt(1)), errNotInitialized)
	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.DelIfValue(ctx, "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "cv:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "cv:idempotency:id", client.IdempotencyKey("", "id"))
	assert.Equal(t, "cv:lock:unlock-reaper", client.LockKey(" unlock-reaper "))
	assert.Equal(t, "cv:stats:creator:abc", client.CreatorStatsKey("abc"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2", PoolSize: 10, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)

	_, err = optionsFromConfig(config.RedisConfig{URL: "://bad"})
	assert.Error(t, err)
}

// fakeRedis is an in-memory cmdable that understands the two scripts the
// client sends.
type fakeRedis struct {
	data   map[string]string
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, hashes: map[string]map[string]string{}}
}

func (f *fakeRedis) hash(key string) map[string]string {
	if f.hashes[key] == nil {
		f.hashes[key] = map[string]string{}
	}
	return f.hashes[key]
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if len(keys) != 1 || len(args) != 1 {
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected arity"))
	}
	switch script {
	case compareAndDelete:
		if v, ok := f.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
			delete(f.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case recordUnlock:
		h := f.hash(keys[0])
		unlocks, _ := strconv.ParseInt(h[fieldUnlocks], 10, 64)
		cents, _ := strconv.ParseInt(h[fieldEarningsCents], 10, 64)
		h[fieldUnlocks] = strconv.FormatInt(unlocks+1, 10)
		cents += args[0].(int64)
		h[fieldEarningsCents] = strconv.FormatInt(cents, 10)
		return redis.NewCmdResult(cents, nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
