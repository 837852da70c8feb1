// Package redisbus carries fact events between services over Redis pub/sub.
// Delivery is best effort: publishing is always a secondary effect of the
// producer's transaction, and subscribers absorb duplicates through the
// ledger's idempotent grant recording.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	storageredis "rewardcore/adapters/redis"
	"rewardcore/core"
)

// DefaultChannel is the topic every producing service publishes facts on.
const DefaultChannel = "user-events"

// Bus implements engine.Publisher and engine.Subscriber on a Redis channel.
type Bus struct {
	client  *goredis.Client
	channel string
	log     *slog.Logger
}

// New connects to Redis and pings it.
func New(cfg storageredis.Config, channel string, log *slog.Logger) (*Bus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewWithClient(client, channel, log), nil
}

// NewWithClient wraps an existing client (useful for testing).
func NewWithClient(client *goredis.Client, channel string, log *slog.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bus{client: client, channel: channel, log: log}
}

// Close closes the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish emits a fact. Callers must treat a returned error as advisory:
// log it and carry on with the primary business transaction.
func (b *Bus) Publish(ctx context.Context, ev core.FactEvent) error {
	data, err := core.EncodeFact(ev)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish fact: %v: %w", err, core.ErrUnavailable)
	}
	return nil
}

// Subscribe opens the fact stream. go-redis resubscribes automatically after
// connection loss, so the channel stays live across transport hiccups.
// Malformed payloads are logged and dropped inside the pump; they never reach
// the consumer. The returned stop function closes the stream for good.
func (b *Bus) Subscribe(ctx context.Context) (<-chan core.FactEvent, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel)
	// confirm the subscription before handing out the stream
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", b.channel, core.ErrUnavailable)
	}

	out := make(chan core.FactEvent, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			ev, err := core.DecodeFact([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("dropping malformed fact", "channel", b.channel, "err", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		_ = sub.Unsubscribe(context.Background(), b.channel)
		_ = sub.Close()
	}
	return out, stop, nil
}
