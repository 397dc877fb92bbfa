package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBlobStore(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalBlobStore(tmpDir)
	ctx := context.Background()

	key := "exports/u1/d1/a.zip"
	content := "hello world"
	require.NoError(t, store.Put(ctx, key, strings.NewReader(content)))

	_, err := os.Stat(filepath.Join(tmpDir, key))
	require.NoError(t, err)

	reader, err := store.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	reader.Close()
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	require.NoError(t, store.Put(ctx, "exports/u1/d1/b.zip", strings.NewReader("other")))
	keys, err := store.List(ctx, "exports/u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"exports/u1/d1/a.zip", "exports/u1/d1/b.zip"}, keys)

	empty, err := store.List(ctx, "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, empty)

	u, err := store.URL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/exports/u1/d1/a.zip"))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, key), ErrNotFound)

	_, err = store.URL(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalBlobStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalBlobStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../outside.zip", "exports/../../outside.zip", "/etc/passwd"} {
		assert.ErrorIs(t, store.Put(ctx, key, strings.NewReader("x")), ErrInvalidKey, key)
		_, err := store.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
		assert.ErrorIs(t, store.Delete(ctx, key), ErrInvalidKey, key)
	}
	_, err := store.List(ctx, "../")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// Cleaned keys that stay inside the root are fine.
	require.NoError(t, store.Put(ctx, "exports/a/../b.zip", strings.NewReader("x")))
	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/b.zip"}, keys)
}

func TestLocalBlobStore_ListSkipsInFlightWrites(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalBlobStore(tmpDir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exports/u1/b.zip", strings.NewReader("b")))
	require.NoError(t, store.Put(ctx, "exports/u1/a.zip", strings.NewReader("a")))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "exports", "u1", tempPrefix+"123"), []byte("partial"), 0o644))

	keys, err := store.List(ctx, "exports")
	require.NoError(t, err)
	assert.Equal(t, []string{"exports/u1/a.zip", "exports/u1/b.zip"}, keys)
}

func TestLocalBlobStore_PutHonoursCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalBlobStore(tmpDir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, "documents/big.pdf", strings.NewReader("content"))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(filepath.Join(tmpDir, "documents"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file is cleaned up")
}

func TestLocalBlobStore_DeleteRemovesEmptyDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalBlobStore(tmpDir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "exports/u1/d1/a.zip", strings.NewReader("a")))
	require.NoError(t, store.Put(ctx, "exports/u2/d1/b.zip", strings.NewReader("b")))

	require.NoError(t, store.Delete(ctx, "exports/u1/d1/a.zip"))
	_, err := os.Stat(filepath.Join(tmpDir, "exports", "u1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(tmpDir, "exports", "u2", "d1", "b.zip"))
	assert.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "exports/u2/d1/b.zip"))
	_, err = os.Stat(filepath.Join(tmpDir, "exports"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(tmpDir)
	assert.NoError(t, err, "root is kept")
}

func TestDocuments(t *testing.T) {
	docs := NewDocuments(NewLocalBlobStore(t.TempDir()))
	ctx := context.Background()

	_, err := docs.FetchDocumentBlob(ctx, "d1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, docs.StoreDocumentBlob(ctx, "d1", []byte("%PDF-1.4")))

	u, err := docs.FetchDocumentBlob(ctx, "d1")
	require.NoError(t, err)
	assert.Contains(t, u, "documents/d1.pdf")

	data, err := docs.OpenDocumentBlob(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	assert.Error(t, docs.StoreDocumentBlob(ctx, "", nil))
}
