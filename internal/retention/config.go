package retention

import (
	"errors"
	"time"
)

type ErrorHandler func(err error)

type Config struct {
	// Enabled 控制 chat 等长驻命令是否在后台周期清理。
	Enabled bool `mapstructure:"enabled"`
	// Interval 为清理周期。
	Interval time.Duration `mapstructure:"interval"`

	// AuditKeepFor 删除早于该时长的审计记录；0 表示不按时间清理。
	AuditKeepFor time.Duration `mapstructure:"audit_keep_for"`
	// AuditKeepLatest 只保留最新的 N 条审计记录；0 表示不按条数清理。
	AuditKeepLatest int `mapstructure:"audit_keep_latest"`
	// SessionKeepFor 删除最近一次更新早于该时长的会话快照；0 表示保留全部。
	SessionKeepFor time.Duration `mapstructure:"session_keep_for"`

	// OnError 为后台清理失败时的回调；默认丢弃。
	OnError ErrorHandler `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		Interval:     time.Hour,
		AuditKeepFor: 30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return c
}

func (c Config) Validate() error {
	if c.AuditKeepFor < 0 || c.SessionKeepFor < 0 {
		return errors.New("retention: keep durations must not be negative")
	}
	if c.AuditKeepLatest < 0 {
		return errors.New("retention: audit_keep_latest must not be negative")
	}
	return nil
}
