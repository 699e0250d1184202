package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisContextPrefix = "gate:ctx:"

// RedisContextStore persists suspended pipeline contexts in Redis, so a
// commitment awaiting co-signature or human review survives process
// restarts and can be resumed from any node sharing the store.
type RedisContextStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisContextStore wraps a Redis client. ttl bounds how long a
// suspended context is retained; zero keeps contexts until deleted.
func NewRedisContextStore(client *redis.Client, ttl time.Duration) *RedisContextStore {
	return &RedisContextStore{client: client, ttl: ttl}
}

func (s *RedisContextStore) Save(pctx *PipelineContext) error {
	raw, err := json.Marshal(pctx)
	if err != nil {
		return fmt.Errorf("gate: context marshal failed: %w", err)
	}
	return s.client.Set(context.Background(), redisContextPrefix+pctx.CommitmentID, raw, s.ttl).Err()
}

func (s *RedisContextStore) Load(commitmentID string) (*PipelineContext, error) {
	raw, err := s.client.Get(context.Background(), redisContextPrefix+commitmentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("gate: no suspended context for commitment %s", commitmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("gate: context load failed: %w", err)
	}
	var pctx PipelineContext
	if err := json.Unmarshal(raw, &pctx); err != nil {
		return nil, fmt.Errorf("gate: context unmarshal failed: %w", err)
	}
	return &pctx, nil
}

func (s *RedisContextStore) Delete(commitmentID string) error {
	return s.client.Del(context.Background(), redisContextPrefix+commitmentID).Err()
}

func (s *RedisContextStore) All() ([]*PipelineContext, error) {
	ctx := context.Background()
	var out []*PipelineContext
	iter := s.client.Scan(ctx, 0, redisContextPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("gate: context scan failed: %w", err)
		}
		var pctx PipelineContext
		if err := json.Unmarshal(raw, &pctx); err != nil {
			return nil, fmt.Errorf("gate: context unmarshal failed: %w", err)
		}
		out = append(out, &pctx)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
