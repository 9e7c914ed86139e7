package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{"file": fileStore, "sqlite": sqliteStore}
}

func TestStoreContract(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "list")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "list", []byte("one")))
			require.NoError(t, s.Put(ctx, "list", []byte("two")))
			got, err := s.Get(ctx, "list")
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))

			require.NoError(t, s.Put(ctx, "email_x1", []byte("p")))
			require.NoError(t, s.Delete(ctx, "email_x1"))
			require.NoError(t, s.Delete(ctx, "email_x1"))
			_, err = s.Get(ctx, "email_x1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "pagination", []byte("c")))
			require.NoError(t, s.Clear(ctx))
			_, err = s.Get(ctx, "list")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "pagination")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "../escape", []byte("x")))
	assert.Error(t, s.Put(ctx, "", []byte("x")))
	_, err = s.Get(ctx, "a/b")
	assert.Error(t, err)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, "list", []byte("v")))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "list.json", entries[0].Name())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "tape"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{Backend: BackendFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
}
