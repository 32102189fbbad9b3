package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/NeboLoop/chat-go-sdk/conversation"
)

const maxUpdateRetries = 10

// Redis implements conversation.Store on a shared Redis, for clients that
// run several processes against one cache.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ conversation.Store = (*Redis)(nil)

// RedisConfig configures a Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix; default "chat:conv:"
	TTL      time.Duration // expiry per conversation; 0 keeps forever
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, cfg.Prefix, cfg.TTL), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "chat:conv:"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *Redis) key(k conversation.Key) string { return s.prefix + string(k) }

// Close closes the client.
func (s *Redis) Close() error { return s.rdb.Close() }

func (s *Redis) Load(ctx context.Context, key conversation.Key) ([]conversation.Message, error) {
	blob, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return decodeBlob(blob)
}

// Update runs an optimistic WATCH/MULTI transaction, retrying when another
// writer touched the key in between.
func (s *Redis) Update(ctx context.Context, key conversation.Key, fn func([]conversation.Message) ([]conversation.Message, error)) error {
	k := s.key(key)
	txf := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, k).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		cur, err := decodeBlob(blob)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		out, err := encodeBlob(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, out, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("update %s: too much contention", key)
}
