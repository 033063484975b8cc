package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a new SQLite store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "@offline_queue", `[{"id":"a"}]`))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get(ctx, "@offline_queue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, v)
}

func TestStore_ClosedReturnsErrClosed(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	require.NoError(t, s.Close())

	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", "v"), ErrClosed)
	assert.ErrorIs(t, s.Remove(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, s.MultiRemove(ctx, []string{"k"}), ErrClosed)
	_, err = s.Keys(ctx, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close(), "double close is a no-op")
}

// kvContract runs the shared KV behavior against any implementation.
func kvContract(t *testing.T, newKV func(t *testing.T) KV) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		kv := newKV(t)
		v, ok, err := kv.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		kv := newKV(t)
		require.NoError(t, kv.Set(ctx, "k", "one"))
		require.NoError(t, kv.Set(ctx, "k", "two"))
		v, ok, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "two", v)
	})

	t.Run("remove", func(t *testing.T) {
		kv := newKV(t)
		require.NoError(t, kv.Set(ctx, "k", "v"))
		require.NoError(t, kv.Remove(ctx, "k"))
		require.NoError(t, kv.Remove(ctx, "k"), "removing a missing key is fine")
		_, ok, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("multi remove", func(t *testing.T) {
		kv := newKV(t)
		require.NoError(t, kv.Set(ctx, "a", "1"))
		require.NoError(t, kv.Set(ctx, "b", "2"))
		require.NoError(t, kv.Set(ctx, "c", "3"))
		require.NoError(t, kv.MultiRemove(ctx, []string{"a", "c", "missing"}))
		require.NoError(t, kv.MultiRemove(ctx, nil))

		keys, err := kv.Keys(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, keys)
	})

	t.Run("keys by prefix sorted", func(t *testing.T) {
		kv := newKV(t)
		for _, k := range []string{"@booklet_restaurants", "@booklet_bookings:upcoming", "@offline_queue", "@booklet_favorites"} {
			require.NoError(t, kv.Set(ctx, k, "x"))
		}
		keys, err := kv.Keys(ctx, "@booklet_")
		require.NoError(t, err)
		assert.Equal(t, []string{"@booklet_bookings:upcoming", "@booklet_favorites", "@booklet_restaurants"}, keys)

		none, err := kv.Keys(ctx, "zzz")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestStore_KVContract(t *testing.T) {
	kvContract(t, func(t *testing.T) KV { return createTestStore(t) })
}

func TestMemory_KVContract(t *testing.T) {
	kvContract(t, func(t *testing.T) KV { return NewMemory() })
}

func TestMemory_FaultInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("disk full")

	m.FailNext(boom)
	assert.ErrorIs(t, m.Set(ctx, "k", "v"), boom)
	assert.NoError(t, m.Set(ctx, "k", "v"), "FailNext applies once")

	m.SetFailing(boom)
	_, _, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, boom)
	_, err = m.Keys(ctx, "")
	assert.ErrorIs(t, err, boom)

	m.SetFailing(nil)
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
	assert.Equal(t, 1, m.Writes())
}
