// Package redis implements engine.Ledger on Redis.
//
// Data structure:
//   - user:{user_id}:progress -> hash {xp, level, balance, updated}
//   - user:{user_id}:grants   -> sorted set of reward ids scored by grant time
package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"rewardcore/core"
)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string        `json:"addr" env:"REWARDCORE_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"REWARDCORE_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"REWARDCORE_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"REWARDCORE_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"REWARDCORE_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"REWARDCORE_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"REWARDCORE_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"REWARDCORE_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Ledger implements the engine.Ledger interface using Redis as the backend.
type Ledger struct {
	client *redis.Client
}

// New creates a Redis-backed ledger with the provided configuration.
func New(config Config) (*Ledger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Ledger{client: client}, nil
}

// NewWithClient creates a Ledger using an existing client (useful for testing).
func NewWithClient(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

// Close closes the Redis connection.
func (l *Ledger) Close() error {
	return l.client.Close()
}

func userProgressKey(user core.UserID) string {
	return fmt.Sprintf("user:%d:progress", user)
}

func userGrantsKey(user core.UserID) string {
	return fmt.Sprintf("user:%d:grants", user)
}

// addXPScript applies the delta and recomputes the level in one atomic step,
// so concurrent grants for the same user cannot lose updates.
var addXPScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local per_level = tonumber(ARGV[2])
	local xp = tonumber(redis.call('HGET', key, 'xp') or '0') + delta
	local level = math.floor(xp / per_level) + 1
	redis.call('HSET', key, 'xp', xp, 'level', level)
	return {xp, level}
`)

// adjustBalanceScript rejects any result below zero before writing, so a
// negative balance is never observable.
var adjustBalanceScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local balance = tonumber(redis.call('HGET', key, 'balance') or '0') + delta
	if balance < 0 then
		return redis.error_reply('insufficient funds')
	end
	redis.call('HSET', key, 'balance', balance)
	return balance
`)

func (l *Ledger) AddXP(ctx context.Context, user core.UserID, delta int64) (core.Progress, error) {
	if delta <= 0 {
		return core.Progress{}, fmt.Errorf("xp delta must be positive: %w", core.ErrInvalidInput)
	}
	res, err := addXPScript.Run(ctx, l.client, []string{userProgressKey(user)}, delta, core.XPPerLevel).Result()
	if err != nil {
		return core.Progress{}, fmt.Errorf("failed to add xp: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return core.Progress{}, fmt.Errorf("unexpected result shape from Redis script")
	}
	xp, _ := vals[0].(int64)
	level, _ := vals[1].(int64)

	prog := core.Progress{UserID: user, XP: xp, Level: level, Updated: time.Now().UTC()}
	if bal, err := l.client.HGet(ctx, userProgressKey(user), "balance").Int64(); err == nil {
		prog.Balance = bal
	}
	return prog, nil
}

func (l *Ledger) AdjustBalance(ctx context.Context, user core.UserID, delta int64) (int64, error) {
	res, err := adjustBalanceScript.Run(ctx, l.client, []string{userProgressKey(user)}, delta).Result()
	if err != nil {
		if strings.Contains(err.Error(), "insufficient funds") {
			return 0, fmt.Errorf("balance adjustment rejected: %w", core.ErrInsufficientFunds)
		}
		return 0, fmt.Errorf("failed to adjust balance: %w", err)
	}
	balance, ok := res.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from Redis script")
	}
	return balance, nil
}

func (l *Ledger) Progress(ctx context.Context, user core.UserID) (core.Progress, error) {
	fields, err := l.client.HGetAll(ctx, userProgressKey(user)).Result()
	if err != nil {
		return core.Progress{}, fmt.Errorf("failed to get progress: %w", err)
	}
	prog := core.Progress{UserID: user, Level: 1, Updated: time.Now().UTC()}
	if v, ok := fields["xp"]; ok {
		prog.XP, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["level"]; ok {
		prog.Level, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["balance"]; ok {
		prog.Balance, _ = strconv.ParseInt(v, 10, 64)
	}
	if prog.Level < 1 {
		prog.Level = 1
	}
	return prog, nil
}

// RecordGrant relies on ZADD NX for atomicity: exactly one concurrent writer
// observes the member being added; everyone else reads "already granted".
func (l *Ledger) RecordGrant(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	added, err := l.client.ZAddNX(ctx, userGrantsKey(user), redis.Z{
		Score:  float64(time.Now().UTC().UnixMilli()),
		Member: string(reward),
	}).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record grant: %w", err)
	}
	return added == 1, nil
}

func (l *Ledger) HasGranted(ctx context.Context, user core.UserID, reward core.RewardID) (bool, error) {
	_, err := l.client.ZScore(ctx, userGrantsKey(user), string(reward)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return true, nil
}

func (l *Ledger) Grants(ctx context.Context, user core.UserID) ([]core.Grant, error) {
	entries, err := l.client.ZRevRangeWithScores(ctx, userGrantsKey(user), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	out := make([]core.Grant, 0, len(entries))
	for _, e := range entries {
		member, _ := e.Member.(string)
		out = append(out, core.Grant{
			UserID:    user,
			RewardID:  core.RewardID(member),
			GrantedAt: time.UnixMilli(int64(e.Score)).UTC(),
		})
	}
	return out, nil
}
