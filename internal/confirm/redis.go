package confirm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps pending actions in Redis so any instance can confirm them
type RedisStore struct {
	client  *redis.Client
	locker  *redislock.Client
	prefix  string
	lockTTL time.Duration
	log     *zap.Logger
}

// NewRedisStore creates a RedisStore with keys under prefix
func NewRedisStore(client *redis.Client, prefix string, log *zap.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		locker:  redislock.New(client),
		prefix:  prefix,
		lockTTL: 10 * time.Second,
		log:     log,
	}
}

func (r *RedisStore) key(token string) string {
	return fmt.Sprintf("%s:%s", r.prefix, token)
}

// Put implements Store
func (r *RedisStore) Put(ctx context.Context, a Action, ttl time.Duration) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(a.Token), raw, ttl).Err()
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, token string) (Action, error) {
	raw, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Action{}, ErrNotFound
	}
	if err != nil {
		return Action{}, err
	}

	var a Action
	if err := json.Unmarshal(raw, &a); err != nil {
		return Action{}, fmt.Errorf("decode confirmation: %w", err)
	}
	return a, nil
}

// Take implements Store. The per-token lock keeps two instances from both running the action.
func (r *RedisStore) Take(ctx context.Context, token string) (Action, error) {
	lock, err := r.locker.Obtain(ctx, "lock:"+r.key(token), r.lockTTL, nil)
	if err == redislock.ErrNotObtained {
		return Action{}, ErrBusy
	} else if err != nil {
		r.log.Error("error obtaining confirmation lock", zap.Error(err))
		return Action{}, err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	a, err := r.Get(ctx, token)
	if err != nil {
		return Action{}, err
	}
	n, err := r.client.Del(ctx, r.key(token)).Result()
	if err != nil {
		return Action{}, err
	}
	if n == 0 {
		return Action{}, ErrNotFound
	}
	return a, nil
}
