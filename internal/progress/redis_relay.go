package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/logger"
)

// RedisConfig configures the relay connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisRelay forwards broadcaster events to a Redis pub/sub channel so that
// observers in other processes can follow jobs.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	log     *logger.Logger
}

// NewRedisRelay connects to Redis and verifies the connection.
func NewRedisRelay(ctx context.Context, cfg RedisConfig, log *logger.Logger) (*RedisRelay, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "csvgen:progress"
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &RedisRelay{rdb: rdb, channel: channel, log: log.WithField(logger.FieldComponent, "redis-relay")}, nil
}

// Run subscribes to b and publishes every event until ctx ends or the
// subscription is closed. Publish errors are logged and the event skipped.
func (r *RedisRelay) Run(ctx context.Context, b *Broadcaster) {
	sub := b.Subscribe()
	defer b.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := r.publish(ctx, ev); err != nil {
				r.log.WithField(logger.FieldJobID, ev.JobID).WithError(err).Warn("Failed to relay progress event")
			}
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, ev domain.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, data).Err()
}

// Close closes the Redis client.
func (r *RedisRelay) Close() error {
	return r.rdb.Close()
}
