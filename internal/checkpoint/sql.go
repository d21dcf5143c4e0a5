package checkpoint

import (
	"context"
	"errors"

	"github.com/wwwzy/BizAgent/internal/storage"
)

// SQLStore 把快照写入 sqlite 的 session_checkpoints 表。
type SQLStore struct {
	st *storage.Storage
}

func NewSQLStore(st *storage.Storage) *SQLStore {
	return &SQLStore{st: st}
}

func (s *SQLStore) Get(ctx context.Context, sessionID string) ([]byte, error) {
	cp, err := s.st.LoadCheckpoint(ctx, sessionID)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return cp.State, nil
}

func (s *SQLStore) Put(ctx context.Context, sessionID, phase string, state []byte) error {
	return s.st.SaveCheckpoint(ctx, &storage.SessionCheckpoint{
		SessionID: sessionID,
		Phase:     phase,
		State:     state,
	})
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	err := s.st.DeleteCheckpoint(ctx, sessionID)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.st.ListCheckpoints(ctx, storage.CheckpointQuery{})
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{SessionID: r.SessionID, Phase: r.Phase, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}
