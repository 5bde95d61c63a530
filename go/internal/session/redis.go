package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "planningroom"

// RedisStore keeps sessions in Redis under a per-client scope, with a TTL matching MaxAge.
type RedisStore struct {
	rdb   redis.UniversalClient
	scope string
	clock clockwork.Clock
}

// NewRedisStore creates a store for one client scope (tab, device, user agent).
func NewRedisStore(rdb redis.UniversalClient, scope string, clock clockwork.Clock) *RedisStore {
	return &RedisStore{rdb: rdb, scope: scope, clock: clock}
}

func (r *RedisStore) sessionKey() string { return fmt.Sprintf("%s:session:%s", keyPrefix, r.scope) }
func (r *RedisStore) profileKey() string { return fmt.Sprintf("%s:profile:%s", keyPrefix, r.scope) }

func (r *RedisStore) Save(ctx context.Context, s Session) error {
	if err := s.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := MaxAge - r.clock.Since(time.UnixMilli(s.JoinedAt))
	if ttl <= 0 {
		return r.Clear(ctx)
	}
	if err := r.rdb.Set(ctx, r.sessionKey(), data, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) (*Session, error) {
	data, err := r.rdb.Get(ctx, r.sessionKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.Expired(r.clock.Now()) {
		return nil, r.Clear(ctx)
	}
	return &s, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.sessionKey()).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (r *RedisStore) SaveProfile(ctx context.Context, p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := r.rdb.Set(ctx, r.profileKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

func (r *RedisStore) LoadProfile(ctx context.Context) (*Profile, error) {
	data, err := r.rdb.Get(ctx, r.profileKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}
