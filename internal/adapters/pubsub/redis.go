// Package pubsub publishes new community scores to a Redis channel so other
// processes on the LAN (overlays, bots) can react to them.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/lanscore/internal/domain/model"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	sinkName           = "redis"
	defaultChannel     = "lanscore:scores"
	defaultDialTimeout = 5 * time.Second
)

// ErrNoURL is returned when no Redis URL is configured.
var ErrNoURL = errors.New("redis url required")

// client is the part of *redis.Client the publisher uses.
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes score batches as JSON to a Redis channel.
type RedisPublisher struct {
	rdb     client
	channel string
	logger  logger.Logger
}

// Option configures a RedisPublisher.
type Option func(*RedisPublisher)

// WithChannel sets the channel batches are published on.
func WithChannel(channel string) Option {
	return func(p *RedisPublisher) {
		if channel = strings.TrimSpace(channel); channel != "" {
			p.channel = channel
		}
	}
}

// WithLogger sets a custom logger for the publisher.
func WithLogger(l logger.Logger) Option {
	return func(p *RedisPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}

func withClient(c client) Option {
	return func(p *RedisPublisher) { p.rdb = c }
}

// NewRedisPublisher connects to the Redis server at redisURL and checks it
// answers a PING.
func NewRedisPublisher(ctx context.Context, redisURL string, opts ...Option) (*RedisPublisher, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, ErrNoURL
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if redisOpts.DialTimeout == 0 {
		redisOpts.DialTimeout = defaultDialTimeout
	}
	return newPublisher(ctx, append([]Option{withClient(redis.NewClient(redisOpts))}, opts...)...)
}

func newPublisher(ctx context.Context, opts ...Option) (*RedisPublisher, error) {
	p := &RedisPublisher{
		channel: defaultChannel,
		logger:  logger.Get().Named("pubsub"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.rdb.Ping(ctx).Err(); err != nil {
		_ = p.rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	p.logger.Info(ctx, "redis publisher ready", logger.String("channel", p.channel))
	return p, nil
}

// Name implements worker.Sink.
func (p *RedisPublisher) Name() string { return sinkName }

// Channel returns the channel batches are published on.
func (p *RedisPublisher) Channel() string { return p.channel }

// Publish sends the batch to the channel.
func (p *RedisPublisher) Publish(ctx context.Context, b model.ScoreBatch) error { //nolint:gocritic // hugeParam: matches the Sink interface
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding batch %s: %w", b.PassID, err)
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("publishing batch %s: %w", b.PassID, err)
	}
	p.logger.Debug(ctx, "batch published",
		logger.String("pass_id", b.PassID),
		logger.Int("scores", len(b.Scores)),
		logger.Int64("receivers", receivers),
	)
	return nil
}

// Close releases the Redis connection pool.
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
