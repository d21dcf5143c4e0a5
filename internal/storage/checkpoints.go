package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCheckpointNotFound 表示指定会话没有快照。
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CheckpointQuery 为列出会话快照的过滤条件，零值表示不过滤。
type CheckpointQuery struct {
	Phase string
	// UpdatedBefore 只返回最近一次更新早于该时间的会话（用于清理）。
	UpdatedBefore *time.Time
	Limit         int
}

// SaveCheckpoint 以 session_id 为键写入或覆盖快照。
func (s *Storage) SaveCheckpoint(ctx context.Context, cp *SessionCheckpoint) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	if cp == nil || cp.SessionID == "" {
		return errors.New("checkpoint session id is required")
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"phase", "state", "updated_at"}),
	}).Create(cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *Storage) LoadCheckpoint(ctx context.Context, sessionID string) (*SessionCheckpoint, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	var cp SessionCheckpoint
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *Storage) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if s == nil || s.db == nil {
		return errors.New("storage not initialized")
	}
	res := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&SessionCheckpoint{})
	if res.Error != nil {
		return fmt.Errorf("delete checkpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrCheckpointNotFound
	}
	return nil
}

// ListCheckpoints 按最近更新时间倒序返回快照元信息（不加载 State 列）。
func (s *Storage) ListCheckpoints(ctx context.Context, q CheckpointQuery) ([]SessionCheckpoint, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage not initialized")
	}
	db := s.db.WithContext(ctx).Model(&SessionCheckpoint{}).
		Select("session_id", "phase", "created_at", "updated_at")
	if q.Phase != "" {
		db = db.Where("phase = ?", q.Phase)
	}
	if q.UpdatedBefore != nil {
		db = db.Where("updated_at < ?", *q.UpdatedBefore)
	}
	db = db.Order("updated_at DESC").Limit(normalizeLimit(q.Limit))

	var out []SessionCheckpoint
	if err := db.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

func (s *Storage) CountCheckpoints(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("storage not initialized")
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&SessionCheckpoint{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count checkpoints: %w", err)
	}
	return n, nil
}
