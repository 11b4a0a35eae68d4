package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "chatbatch:checkpoint:"

// RedisStore implements Store on a Redis list, one record per element.
type RedisStore struct {
	client *redis.Client
	key    string
	owned  bool
	mu     sync.RWMutex
	closed bool
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix (default: "chatbatch:checkpoint:").
	Prefix string
	// Name identifies the checkpoint under the prefix.
	Name string
}

// NewRedisStore connects to Redis and returns a store for cfg.Name.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("checkpoint name is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := NewRedisStoreFromClient(client, cfg.Prefix, cfg.Name)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient creates a store on an existing client. The client
// is not closed by Close.
func NewRedisStoreFromClient(client *redis.Client, prefix, name string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		key:    prefix + name,
	}
}

// Key returns the Redis list key holding the records.
func (s *RedisStore) Key() string {
	return s.key
}

// Append pushes one record to the tail of the list.
func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	data, err := rec.MarshalLine()
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("push record: %w", err)
	}
	return nil
}

// Load reads every record in push order.
func (s *RedisStore) Load(ctx context.Context) ([]Record, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	lines, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	recs := make([]Record, 0, len(lines))
	for i, line := range lines {
		rec, err := UnmarshalLine([]byte(line))
		if err != nil {
			return nil, &CorruptError{Source: s.key, Line: i + 1, Err: err}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Reset deletes the list.
func (s *RedisStore) Reset(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the store, and the client when the store created it.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		return s.client.Close()
	}
	return nil
}

func (s *RedisStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}
