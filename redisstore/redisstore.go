// Package redisstore is a go-redis backed fiber.Storage, used to keep
// account sessions in Redis instead of process memory.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces session keys
const DefaultPrefix = "session:"

const scanBatch = 100

var _ fiber.Storage = (*Storage)(nil)

// Storage implements fiber.Storage over a redis client
type Storage struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// Option customizes Storage
type Option func(*Storage)

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		s.prefix = prefix
	}
}

// WithTimeout bounds every redis call
func WithTimeout(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New wraps client
func New(client redis.UniversalClient, opts ...Option) *Storage {
	s := &Storage{
		client:  client,
		prefix:  DefaultPrefix,
		timeout: 3 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Connect parses a redis:// URL, tunes the pool and pings the server
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid redis url")
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to reach redis")
	}
	return client, nil
}

// Key returns the redis key for a session id
func (s *Storage) Key(id string) string {
	return s.prefix + id
}

// Get returns nil, nil for missing keys as fiber expects
func (s *Storage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read session")
	}
	return val, nil
}

// Set stores val. A zero exp keeps the key until deleted.
func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Set(ctx, s.Key(key), val, exp).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to write session")
	}
	return nil
}

func (s *Storage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.Del(ctx, s.Key(key)).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete session")
	}
	return nil
}

// Reset deletes every key under the prefix, one pipeline per scan batch
func (s *Storage) Reset() error {
	ctx := context.Background()
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", scanBatch).Result()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to scan sessions")
		}

		if len(keys) > 0 {
			pipe := s.client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete sessions")
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close closes the client
func (s *Storage) Close() error {
	return s.client.Close()
}

func (s *Storage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}
