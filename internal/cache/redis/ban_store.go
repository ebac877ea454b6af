package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bellzar7/Codecan-EX-sub000/internal/domain"
)

// banKey holds the single shared unblock-until timestamp all watcher
// processes agree on.
const banKey = "exchange:ban_until_ms"

// BanStore implements domain.BanStore on a single Redis key. The value
// expires on its own shortly after the ban horizon passes so a stale
// window cannot outlive a crashed writer by much.
type BanStore struct {
	rdb *redis.Client
}

// NewBanStore creates a BanStore backed by the given Client.
func NewBanStore(c *Client) *BanStore {
	return &BanStore{rdb: c.Underlying()}
}

// Load reads the shared unblock timestamp. A missing key means "not
// limited" and yields zero.
func (s *BanStore) Load(ctx context.Context) (int64, error) {
	val, err := s.rdb.Get(ctx, banKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: load ban window: %w", err)
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse ban window %q: %w", val, err)
	}
	return ts, nil
}

// Save persists the shared unblock timestamp. The key's TTL extends one
// minute past the horizon.
func (s *BanStore) Save(ctx context.Context, unblockAt int64) error {
	ttl := time.Until(time.UnixMilli(unblockAt)) + time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	if err := s.rdb.Set(ctx, banKey, strconv.FormatInt(unblockAt, 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis: save ban window: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BanStore = (*BanStore)(nil)
