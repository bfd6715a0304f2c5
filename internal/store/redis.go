package store

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/metrics"
)

// fanoutChannel carries accepted puts between relays sharing one Redis.
const fanoutChannel = "decentchat:graph"

// RedisStore handles Redis pub/sub fanout between relays and backs the rate limiter.
type RedisStore struct {
	client *redis.Client
}

// envelope wraps a diff with the id of the relay that accepted it.
type envelope struct {
	Origin string     `json:"origin"`
	Put    graph.Diff `json:"put"`
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Publish sends an accepted diff to every relay subscribed to the fanout channel.
func (s *RedisStore) Publish(ctx context.Context, origin string, diff graph.Diff) error {
	start := time.Now()
	defer func() { metrics.RedisLatency.Observe(time.Since(start).Seconds()) }()

	payload, err := json.Marshal(envelope{Origin: origin, Put: diff})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, fanoutChannel, payload).Err()
}

// Subscribe delivers diffs published by other relays until ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context, self string, logger zerolog.Logger, fn func(graph.Diff)) error {
	pubsub := s.client.Subscribe(ctx, fanoutChannel)
	defer pubsub.Close()

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	logger.Info().Str("channel", fanoutChannel).Msg("subscribed to relay fanout")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Error().Err(err).Msg("bad fanout payload")
				continue
			}
			if env.Origin == self {
				continue
			}
			fn(env.Put)
		}
	}
}
