package checkpoint

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/BizAgent/internal/storage"
)

func newSQLStore(t *testing.T) Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{
		Path: filepath.Join(t.TempDir(), "cp.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewSQLStore(st)
}

func newRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:cp:", time.Hour), mr
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": newSQLStore,
		"redis": func(t *testing.T) Store {
			s, _ := newRedisStore(t)
			return s
		},
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.Delete(ctx, "missing"), ErrNotFound)

			require.NoError(t, s.Put(ctx, "s1", "executing", []byte(`{"plan":["a"]}`)))
			require.NoError(t, s.Put(ctx, "s2", "planning", []byte(`{}`)))
			require.NoError(t, s.Put(ctx, "s1", "done", []byte(`{"plan":[]}`)))

			got, err := s.Get(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, `{"plan":[]}`, string(got))

			list, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			phases := map[string]string{}
			for _, e := range list {
				phases[e.SessionID] = e.Phase
				assert.False(t, e.UpdatedAt.IsZero())
			}
			assert.Equal(t, map[string]string{"s1": "done", "s2": "planning"}, phases)

			require.NoError(t, s.Delete(ctx, "s2"))
			list, err = s.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "s1", list[0].SessionID)
		})
	}
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, s.Put(ctx, "s1", "executing", []byte("{}")))
	assert.Equal(t, time.Hour, mr.TTL("test:cp:s1"))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCopiesState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := []byte("abc")
	require.NoError(t, s.Put(ctx, "s", "planning", buf))
	buf[0] = 'x'

	got, err := s.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{Backend: "sqlite"}, nil)
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: "etcd"}, nil)
	assert.Error(t, err)

	s, err := New(ctx, Config{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	mr := miniredis.RunT(t)
	s, err = New(ctx, Config{Backend: "redis", Redis: RedisConfig{Addr: mr.Addr()}}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "x", "done", []byte("{}")))
	assert.True(t, mr.Exists(defaultKeyPrefix+"x"))

	closer, ok := s.(io.Closer)
	require.True(t, ok)
	assert.NoError(t, closer.Close())
}
