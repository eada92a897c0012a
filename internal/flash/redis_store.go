package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/plantdx/internal/logging"
)

const keyPrefix = "flash:"

// Cache abstracts the Redis operations the store needs.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
}

// RedisCache is the go-redis backed Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// GetDel returns redis.Nil when the key does not exist.
func (c *RedisCache) GetDel(ctx context.Context, key string) (string, error) {
	return c.client.GetDel(ctx, key).Result()
}

// RedisStore keeps flash payloads in Redis; the cookie only carries a random key.
type RedisStore struct {
	cache          Cache
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store keeping entries in cache for ttl.
func NewRedisStore(cache Cache, ttl time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		cache:          cache,
		ttl:            ttl,
		logger:         logger.Named("flash_redis"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Put saves data under a fresh key and hands the key to the client in the flash cookie.
func (s *RedisStore) Put(c *gin.Context, data Data) error {
	ctx := c.Request.Context()
	requestID := logging.RequestIDFromContext(ctx)

	payload, err := json.Marshal(data)
	if err != nil {
		return logging.NewOperationError("flash.encode", requestID, err)
	}

	id := uuid.NewString()
	if err := s.withRetry(ctx, requestID, "flash.put", func() error {
		return s.cache.Set(ctx, keyPrefix+id, string(payload), s.ttl)
	}); err != nil {
		return err
	}
	setCookie(c, id, int(s.ttl.Seconds()))
	return nil
}

// Pop reads and deletes the entry named by the flash cookie. A missing entry yields empty Data.
func (s *RedisStore) Pop(c *gin.Context) (Data, error) {
	id, err := c.Cookie(CookieName)
	if errors.Is(err, http.ErrNoCookie) || id == "" {
		return Data{}, nil
	}
	clearCookie(c)

	if _, err := uuid.Parse(id); err != nil {
		return Data{}, nil
	}

	ctx := c.Request.Context()
	requestID := logging.RequestIDFromContext(ctx)

	var raw string
	err = s.withRetry(ctx, requestID, "flash.pop", func() error {
		value, err := s.cache.GetDel(ctx, keyPrefix+id)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return Data{}, nil
	}
	if err != nil {
		return Data{}, err
	}

	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		logging.WithOperation(s.logger, "flash.pop", requestID).Warn("discarding malformed flash entry", zap.Error(err))
		return Data{}, nil
	}
	return data, nil
}

func (s *RedisStore) withRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	backoff := s.initialBackoff
	opLogger := logging.WithOperation(s.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= s.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, redis.Nil) {
			return err
		}

		if !isTransientError(err) || attempt == s.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, fmt.Errorf("no attempts made: %w", err))
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
