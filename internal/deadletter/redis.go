package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore appends entries as JSON to a Redis list.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(redisURL string, key string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	if key == "" {
		key = "decision-pipeline:deadletters"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}
	if err := s.client.RPush(ctx, s.key, b).Err(); err != nil {
		return fmt.Errorf("redis rpush failed: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode dead-letter entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen failed: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
