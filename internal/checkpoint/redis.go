package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "bizagent:checkpoint:"
	scanBatch        = 100

	fieldPhase     = "phase"
	fieldState     = "state"
	fieldUpdatedAt = "updated_at"
)

// RedisStore 以 hash 保存快照：一个会话一个 key，字段为 phase/state/updated_at。
// ttl > 0 时每次写入都会刷新过期时间。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Close 关闭底层连接。
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.client.HGet(ctx, r.key(sessionID), fieldState).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get checkpoint: %w", err)
	}
	return data, nil
}

func (r *RedisStore) Put(ctx context.Context, sessionID, phase string, state []byte) error {
	key := r.key(sessionID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldPhase, phase,
			fieldState, state,
			fieldUpdatedAt, time.Now().UTC().UnixMilli(),
		)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put checkpoint: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	n, err := r.client.Del(ctx, r.key(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("redis delete checkpoint: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]Entry, error) {
	var (
		cursor uint64
		out    []Entry
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan checkpoints: %w", err)
		}
		for _, key := range keys {
			vals, err := r.client.HMGet(ctx, key, fieldPhase, fieldUpdatedAt).Result()
			if err != nil {
				return nil, fmt.Errorf("redis read checkpoint %s: %w", key, err)
			}
			e := Entry{SessionID: strings.TrimPrefix(key, r.prefix)}
			if s, ok := vals[0].(string); ok {
				e.Phase = s
			}
			if s, ok := vals[1].(string); ok {
				if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
					e.UpdatedAt = time.UnixMilli(ms).UTC()
				}
			}
			out = append(out, e)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sortEntries(out)
	return out, nil
}
