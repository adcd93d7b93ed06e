package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"healthsync/internal/domain/credential"

	"github.com/redis/go-redis/v9"
)

// cmdable is the subset of *redis.Client the cache needs.
type cmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CachedCredentialStore is a read-through cache in front of another credential.Store.
// Cache failures degrade to the backing store.
type CachedCredentialStore struct {
	next   credential.Store
	client cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCredentialStore(next credential.Store, client cmdable, ttl time.Duration, logger *slog.Logger) *CachedCredentialStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedCredentialStore{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(provider, userID string) string {
	return fmt.Sprintf("credentials:%s:%s", provider, userID)
}

func (s *CachedCredentialStore) Get(ctx context.Context, provider, userID string) (*credential.Token, error) {
	key := cacheKey(provider, userID)

	val, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var t credential.Token
		if err := json.Unmarshal([]byte(val), &t); err == nil {
			return &t, nil
		}
	} else if err != redis.Nil {
		s.logger.Warn("credential cache read failed", "key", key, "error", err)
	}

	t, err := s.next.Get(ctx, provider, userID)
	if err != nil || t == nil {
		return t, err
	}

	data, _ := json.Marshal(t)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.Warn("credential cache write failed", "key", key, "error", err)
	}
	return t, nil
}

// Put writes through and drops the cached copy.
func (s *CachedCredentialStore) Put(ctx context.Context, provider, userID string, t credential.Token) error {
	if err := s.next.Put(ctx, provider, userID, t); err != nil {
		return err
	}
	key := cacheKey(provider, userID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("credential cache invalidation failed", "key", key, "error", err)
	}
	return nil
}
