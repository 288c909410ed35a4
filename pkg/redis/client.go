package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

// Keys are cv:<kind>:<parts...>.
const (
	keyNamespace = "cv"
	kindIdem     = "idempotency"
	kindLock     = "lock"
	kindStats    = "stats"
)

const (
	fieldUnlocks       = "unlocks"
	fieldEarningsCents = "earnings_cents"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// recordUnlock bumps both creator counters in one step.
const recordUnlock = `redis.call("HINCRBY", KEYS[1], "` + fieldUnlocks + `", 1)
return redis.call("HINCRBY", KEYS[1], "` + fieldEarningsCents + `", ARGV[1])`

var errNotInitialized = errors.New("redis client not initialized")

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	HGetAll(context.Context, string) *redis.MapStringStringCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

// IdempotencyStore is the subset the consumer idempotency guard needs.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

type Client struct {
	store cmdable
	raw   *redis.Client
}

// New dials Redis and pings it before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig prefers the URL; explicit pool and timeout settings fill
// whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errNotInitialized
	}
	return c.store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Del(ctx, keys...).Err()
}

// DelIfValue deletes key when its current value equals value, in one round
// trip. It reports whether a key was removed.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if c.store == nil {
		return false, errNotInitialized
	}
	removed, err := c.store.Eval(ctx, compareAndDelete, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(kindIdem, scope, id)
}

func (c *Client) LockKey(name string) string {
	return key(kindLock, name)
}

func (c *Client) CreatorStatsKey(creatorID string) string {
	return key(kindStats, "creator", creatorID)
}

// CreatorStats is the dashboard view of a creator's unlock activity.
type CreatorStats struct {
	Unlocks  int64
	Earnings decimal.Decimal
}

// IncrCreatorRevenue records one unlock and its creator earnings. Earnings
// are kept in cents. The hash is display-only; payouts never read it.
func (c *Client) IncrCreatorRevenue(ctx context.Context, creatorID string, earnings decimal.Decimal) error {
	if c.store == nil {
		return errNotInitialized
	}
	cents := earnings.Shift(2).Round(0).IntPart()
	return c.store.Eval(ctx, recordUnlock, []string{c.CreatorStatsKey(creatorID)}, cents).Err()
}

// CreatorStats reads a creator's counters. Missing hashes read as zero.
func (c *Client) CreatorStats(ctx context.Context, creatorID string) (CreatorStats, error) {
	if c.store == nil {
		return CreatorStats{}, errNotInitialized
	}
	raw, err := c.store.HGetAll(ctx, c.CreatorStatsKey(creatorID)).Result()
	if err != nil {
		return CreatorStats{}, err
	}
	var stats CreatorStats
	if v := raw[fieldUnlocks]; v != "" {
		if stats.Unlocks, err = strconv.ParseInt(v, 10, 64); err != nil {
			return CreatorStats{}, fmt.Errorf("creator %s unlocks: %w", creatorID, err)
		}
	}
	if v := raw[fieldEarningsCents]; v != "" {
		cents, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return CreatorStats{}, fmt.Errorf("creator %s earnings: %w", creatorID, err)
		}
		stats.Earnings = decimal.New(cents, -2)
	}
	return stats, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func key(kind string, parts ...string) string {
	b := strings.Builder{}
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
