package storage

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID   string `json:"id"`
	Size int    `json:"size"`
}

func (e *testEntity) GetID() string { return e.ID }

func setupTestDB(t *testing.T) *badger.DB {
	db, err := OpenBadger("", true)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "content")
	other := NewBadgerStore(db, "contentx")

	t.Run("Put and Get", func(t *testing.T) {
		require.NoError(t, store.Put(&testEntity{ID: "aa", Size: 3}))

		var got testEntity
		require.NoError(t, store.Get("aa", &got))
		assert.Equal(t, 3, got.Size)
	})

	t.Run("Put replaces", func(t *testing.T) {
		require.NoError(t, store.Put(&testEntity{ID: "aa", Size: 7}))

		var got testEntity
		require.NoError(t, store.Get("aa", &got))
		assert.Equal(t, 7, got.Size)
	})

	t.Run("Get missing", func(t *testing.T) {
		var got testEntity
		err := store.Get("nope", &got)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Empty id", func(t *testing.T) {
		assert.Error(t, store.Put(&testEntity{}))
	})

	t.Run("Has", func(t *testing.T) {
		ok, err := store.Has("aa")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Has("bb")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("IDs are scoped to the prefix", func(t *testing.T) {
		require.NoError(t, store.Put(&testEntity{ID: "bb"}))
		require.NoError(t, other.Put(&testEntity{ID: "zz"}))

		ids, err := store.IDs()
		require.NoError(t, err)
		assert.Equal(t, []string{"aa", "bb"}, ids)
	})
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, WriteFileAtomic(fs, "/repo/.sprig/state.json", []byte("v1"), 0644))
	require.NoError(t, WriteFileAtomic(fs, "/repo/.sprig/state.json", []byte("v2"), 0644))

	data, err := afero.ReadFile(fs, "/repo/.sprig/state.json")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	entries, err := afero.ReadDir(fs, "/repo/.sprig")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not survive a successful write")
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestWriteFileAtomicFailureKeepsOldContent(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/repo/state.json", []byte("old"), 0644))

	ro := afero.NewReadOnlyFs(base)
	err := WriteFileAtomic(ro, "/repo/state.json", []byte("new"), 0644)
	require.Error(t, err)

	data, err := afero.ReadFile(base, "/repo/state.json")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}
