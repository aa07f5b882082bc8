package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunegate/internal/models"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "tunegate:session:"

// errSuperseded aborts a WATCH transaction whose precondition no longer holds.
var errSuperseded = errors.New("session changed")

// RedisStore keeps records as JSON strings so that several gateway replicas can share sessions.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis parses a redis:// URL and creates a [RedisStore]. It does not dial.
func OpenRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %w", shared.ErrInvalidConfig, err)
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

func redisTokenKey(session string) string { return redisPrefix + session + ":token" }
func redisStateKey(session string) string { return redisPrefix + session + ":state" }

func (s *RedisStore) Get(ctx context.Context, session string) (*models.TokenRecord, error) {
	if err := requireSession(session); err != nil {
		return nil, err
	}

	b, err := s.client.Get(ctx, redisTokenKey(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}

	var rec models.TokenRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrInvalidRecord, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, session string, rec *models.TokenRecord) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.client.Set(ctx, redisTokenKey(session), b, 0).Err(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return nil
}

// Replace runs under WATCH on the token key. A concurrent write to that key counts as a mismatch.
func (s *RedisStore) Replace(ctx context.Context, session string, prev, next *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := next.Validate(); err != nil {
		return false, err
	}
	if prev == nil {
		return false, nil
	}

	b, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("failed to encode record: %w", err)
	}

	key := redisTokenKey(session)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return errSuperseded
		}
		if err != nil {
			return err
		}

		var cur models.TokenRecord
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidRecord, err)
		}
		if cur.AccessToken != prev.AccessToken {
			return errSuperseded
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			return nil
		})
		return err
	}, key)
	return watchResult(err)
}

// Authorize runs under WATCH on the state key, so a logout during the exchange wins.
func (s *RedisStore) Authorize(ctx context.Context, session, state string, rec *models.TokenRecord) (bool, error) {
	if err := requireSession(session); err != nil {
		return false, err
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if state == "" {
		return false, nil
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to encode record: %w", err)
	}

	sk, tk := redisStateKey(session), redisTokenKey(session)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, sk).Result()
		if errors.Is(err, redis.Nil) {
			return errSuperseded
		}
		if err != nil {
			return err
		}
		if cur != state {
			return errSuperseded
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tk, b, 0)
			pipe.Del(ctx, sk)
			return nil
		})
		return err
	}, sk, tk)
	return watchResult(err)
}

func watchResult(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errSuperseded), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case errors.Is(err, shared.ErrInvalidRecord):
		return false, err
	default:
		return false, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisTokenKey(session))
	pipe.Del(ctx, redisStateKey(session))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) PendingState(ctx context.Context, session string) (string, bool, error) {
	if err := requireSession(session); err != nil {
		return "", false, err
	}

	v, err := s.client.Get(ctx, redisStateKey(session)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return v, v != "", nil
}

func (s *RedisStore) PutPendingState(ctx context.Context, session, state string, ttl time.Duration) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, redisStateKey(session), state, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ClearPendingState(ctx context.Context, session string) error {
	if err := requireSession(session); err != nil {
		return err
	}
	if err := s.client.Del(ctx, redisStateKey(session)).Err(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
