// Package retention 周期清理过期的审计记录与会话快照。
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"go.uber.org/zap"
)

// AuditStore 是清理审计记录所需的存储能力，*storage.Storage 满足该接口。
type AuditStore interface {
	DeleteAuditRecordsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteAuditRecordsKeepLatest(ctx context.Context, keep int) (int64, error)
}

// Report 为一次清理的结果。
type Report struct {
	AuditDeleted    int64
	SessionsDeleted int
}

type Pruner struct {
	cfg Config

	audit    AuditStore
	sessions checkpoint.Store
	logger   *zap.Logger

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	runErrMu sync.Mutex
	runErr   error

	protectedMu sync.RWMutex
	protected   map[string]struct{}
}

// NewPruner 创建清理器。audit 或 sessions 为 nil 时跳过对应的清理。
func NewPruner(cfg Config, audit AuditStore, sessions checkpoint.Store, logger *zap.Logger) (*Pruner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		cfg:      cfg.withDefaults(),
		audit:    audit,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// RunOnce 以 now 为基准执行一次完整清理。
func (p *Pruner) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	var rep Report
	if p == nil {
		return rep, errors.New("pruner is nil")
	}

	if p.audit != nil {
		if p.cfg.AuditKeepFor > 0 {
			n, err := p.audit.DeleteAuditRecordsBefore(ctx, now.Add(-p.cfg.AuditKeepFor))
			rep.AuditDeleted += n
			if err != nil {
				return rep, err
			}
		}
		if p.cfg.AuditKeepLatest > 0 {
			n, err := p.audit.DeleteAuditRecordsKeepLatest(ctx, p.cfg.AuditKeepLatest)
			rep.AuditDeleted += n
			if err != nil {
				return rep, err
			}
		}
	}

	if p.sessions != nil && p.cfg.SessionKeepFor > 0 {
		n, err := p.pruneSessions(ctx, now.Add(-p.cfg.SessionKeepFor))
		rep.SessionsDeleted = n
		if err != nil {
			return rep, err
		}
	}

	p.logger.Debug("retention pass finished",
		zap.Int64("audit_deleted", rep.AuditDeleted),
		zap.Int("sessions_deleted", rep.SessionsDeleted))
	return rep, nil
}

// Protect 使会话不受过期清理影响，用于正在交互中的会话。
func (p *Pruner) Protect(sessionID string) {
	p.protectedMu.Lock()
	defer p.protectedMu.Unlock()
	if p.protected == nil {
		p.protected = make(map[string]struct{})
	}
	p.protected[sessionID] = struct{}{}
}

func (p *Pruner) isProtected(sessionID string) bool {
	p.protectedMu.RLock()
	defer p.protectedMu.RUnlock()
	_, ok := p.protected[sessionID]
	return ok
}

func (p *Pruner) pruneSessions(ctx context.Context, before time.Time) (int, error) {
	entries, err := p.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	deleted := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !e.UpdatedAt.Before(before) || p.isProtected(e.SessionID) {
			continue
		}
		err := p.sessions.Delete(ctx, e.SessionID)
		if errors.Is(err, checkpoint.ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("delete session %s: %w", e.SessionID, err)
		}
		deleted++
	}
	return deleted, nil
}

// Start 在后台按 Interval 周期清理，启动时先执行一次。
func (p *Pruner) Start(ctx context.Context) error {
	if p == nil {
		return errors.New("pruner is nil")
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pruner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			p.runErrMu.Lock()
			if p.runErr == nil {
				p.runErr = err
			}
			p.runErrMu.Unlock()
		}
	}()
	return nil
}

func (p *Pruner) run(ctx context.Context) error {
	if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.cfg.OnError(err)
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx, time.Now().UTC()); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				// 单次失败不终止循环，下个周期重试
				p.cfg.OnError(err)
			}
		}
	}
}

func (p *Pruner) Stop() {
	if p == nil || p.cancel == nil {
		return
	}
	p.cancel()
}

func (p *Pruner) Wait() error {
	if p == nil {
		return nil
	}
	p.wg.Wait()
	p.runErrMu.Lock()
	defer p.runErrMu.Unlock()
	return p.runErr
}
