package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps a TTL-bounded cache of recently scraped URLs in front of
// the relational dedup gate, so repeat runs skip without touching postgres.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func scrapedKey(sourceID int64, url string) string {
	return fmt.Sprintf("scraped:%d:%s", sourceID, url)
}

// MarkScraped sets a key with a TTL to short-circuit re-scraping.
func (s *RedisStore) MarkScraped(ctx context.Context, sourceID int64, url string, ttl time.Duration) error {
	return s.client.Set(ctx, scrapedKey(sourceID, url), "1", ttl).Err()
}

// IsRecentlyScraped checks whether a URL was scraped within the TTL.
func (s *RedisStore) IsRecentlyScraped(ctx context.Context, sourceID int64, url string) (bool, error) {
	n, err := s.client.Exists(ctx, scrapedKey(sourceID, url)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
