// Package checkpoint 持久化会话的 AgentState 快照，支持进程重启后恢复执行。
//
// 快照内容对本包不透明（由 agent 包编码为 JSON），这里只负责按会话 ID 存取。
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wwwzy/BizAgent/internal/storage"
)

// ErrNotFound 表示会话没有快照。
var ErrNotFound = errors.New("checkpoint not found")

// Entry 是快照的元信息，List 时返回，不包含快照内容。
type Entry struct {
	SessionID string
	Phase     string
	UpdatedAt time.Time
}

// Store 按会话 ID 存取快照。同一会话重复 Put 会覆盖旧值。
type Store interface {
	Get(ctx context.Context, sessionID string) ([]byte, error)
	Put(ctx context.Context, sessionID, phase string, state []byte) error
	Delete(ctx context.Context, sessionID string) error
	// List 按最近更新时间倒序返回所有会话。
	List(ctx context.Context) ([]Entry, error)
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config 对应配置文件中的 checkpoint 段。
type Config struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// New 根据配置创建 Store。sqlite 后端需要传入已打开的 storage。
func New(ctx context.Context, cfg Config, st *storage.Storage) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendSQLite:
		if st == nil {
			return nil, errors.New("sqlite checkpoint backend requires storage")
		}
		return NewSQLStore(st), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}
