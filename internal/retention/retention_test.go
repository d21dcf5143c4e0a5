package retention

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/BizAgent/internal/checkpoint"
	"github.com/wwwzy/BizAgent/internal/storage"
)

func openTestStorage(t *testing.T, ctx context.Context) *storage.Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "bizagent-test.db")
	store, err := storage.Open(ctx, storage.Config{Path: dbPath, EnableWAL: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertAudit(t *testing.T, ctx context.Context, st *storage.Storage, createdAt time.Time) {
	t.Helper()
	rec := &storage.AuditRecord{
		TraceID:   "s1",
		Action:    "marketing_expert",
		Status:    "success",
		CreatedAt: createdAt,
	}
	if err := st.InsertAuditRecord(ctx, rec); err != nil {
		t.Fatalf("insert audit record: %v", err)
	}
}

func TestRunOnceAuditByAge(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, ctx)
	now := time.Now().UTC()

	insertAudit(t, ctx, st, now.Add(-72*time.Hour))
	insertAudit(t, ctx, st, now.Add(-48*time.Hour))
	insertAudit(t, ctx, st, now.Add(-time.Hour))

	p, err := NewPruner(Config{AuditKeepFor: 24 * time.Hour}, st, nil, nil)
	require.NoError(t, err)

	rep, err := p.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rep.AuditDeleted)

	n, err := st.CountAuditRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunOnceAuditKeepLatest(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, ctx)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		insertAudit(t, ctx, st, now.Add(-time.Duration(i)*time.Minute))
	}

	p, err := NewPruner(Config{AuditKeepLatest: 2}, st, nil, nil)
	require.NoError(t, err)

	rep, err := p.RunOnce(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rep.AuditDeleted)

	n, err := st.CountAuditRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRunOnceSessions(t *testing.T) {
	ctx := context.Background()
	sessions := checkpoint.NewMemoryStore()
	require.NoError(t, sessions.Put(ctx, "a", "done", []byte(`{}`)))
	require.NoError(t, sessions.Put(ctx, "b", "executing", []byte(`{}`)))

	p, err := NewPruner(Config{SessionKeepFor: 24 * time.Hour}, nil, sessions, nil)
	require.NoError(t, err)

	// 两个会话都刚写入，尚未过期
	rep, err := p.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, rep.SessionsDeleted)

	rep, err = p.RunOnce(ctx, time.Now().UTC().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.SessionsDeleted)

	entries, err := sessions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunOnceSkipsProtectedSession(t *testing.T) {
	ctx := context.Background()
	sessions := checkpoint.NewMemoryStore()
	require.NoError(t, sessions.Put(ctx, "active", "done", []byte(`{}`)))
	require.NoError(t, sessions.Put(ctx, "stale", "done", []byte(`{}`)))

	p, err := NewPruner(Config{SessionKeepFor: time.Hour}, nil, sessions, nil)
	require.NoError(t, err)
	p.Protect("active")

	rep, err := p.RunOnce(ctx, time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SessionsDeleted)

	_, err = sessions.Get(ctx, "active")
	assert.NoError(t, err)
	_, err = sessions.Get(ctx, "stale")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRunOnceDisabledRules(t *testing.T) {
	ctx := context.Background()
	st := openTestStorage(t, ctx)
	insertAudit(t, ctx, st, time.Now().UTC().Add(-1000*time.Hour))

	p, err := NewPruner(Config{}, st, checkpoint.NewMemoryStore(), nil)
	require.NoError(t, err)

	rep, err := p.RunOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
}

type failingAudit struct{}

func (failingAudit) DeleteAuditRecordsBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db locked")
}

func (failingAudit) DeleteAuditRecordsKeepLatest(context.Context, int) (int64, error) {
	return 0, nil
}

func TestStartReportsErrorsAndStops(t *testing.T) {
	var calls atomic.Int32
	cfg := Config{
		Interval:     10 * time.Millisecond,
		AuditKeepFor: time.Hour,
		OnError:      func(error) { calls.Add(1) },
	}
	p, err := NewPruner(cfg, failingAudit{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, p.Start(context.Background()))
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.NoError(t, p.Wait())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{AuditKeepFor: -time.Second}.Validate())
	assert.Error(t, Config{AuditKeepLatest: -1}.Validate())

	_, err := NewPruner(Config{SessionKeepFor: -time.Second}, nil, nil, nil)
	assert.Error(t, err)
}
