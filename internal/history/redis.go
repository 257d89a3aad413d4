package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore implements Store on a Redis list per identity. LPUSH+LTRIM in a
// pipeline keeps the cap invariant; entries are stored as JSON.
type RedisStore struct {
	client *redis.Client
	cap    int
}

// NewRedisStore creates a Redis-backed history store with the given cap.
func NewRedisStore(client *redis.Client, capacity int) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultLimit
	}
	return &RedisStore{client: client, cap: capacity}
}

func historyKey(identity string) string {
	return "history:" + identity
}

func (s *RedisStore) Append(ctx context.Context, identity string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, historyKey(identity), payload)
	pipe.LTrim(ctx, historyKey(identity), 0, int64(s.cap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, identity string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.cap {
		limit = s.cap
	}

	raw, err := s.client.LRange(ctx, historyKey(identity), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
