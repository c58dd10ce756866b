package fingerprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldb "github.com/finelagusaz/ghost-launcher/internal/db"
)

func newSQLCache(t *testing.T) Cache {
	t.Helper()
	db, err := internaldb.OpenCatalog(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLCache(db)
}

func newFileCache(t *testing.T) Cache {
	t.Helper()
	return NewFileCache(filepath.Join(t.TempDir(), "cache", "fingerprints.json"))
}

// TestCacheContract runs the same get/set/prune checks against every backend.
func TestCacheContract(t *testing.T) {
	backends := map[string]func(*testing.T) Cache{
		"sql":  newSQLCache,
		"file": newFileCache,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := open(t)

			_, ok, err := c.Get(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Set(ctx, "a", "fp1"))
			require.NoError(t, c.Set(ctx, "b", "fp2"))
			require.NoError(t, c.Set(ctx, "a", "fp3"))

			fp, ok, err := c.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "fp3", fp)

			require.NoError(t, c.Prune(ctx, []string{"a", "unknown"}))

			_, ok, err = c.Get(ctx, "b")
			require.NoError(t, err)
			assert.False(t, ok)
			fp, ok, err = c.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "fp3", fp)

			require.NoError(t, c.Set(ctx, "c", "fp4"))
			require.NoError(t, c.Delete(ctx, "c"))
			require.NoError(t, c.Delete(ctx, "c"))
			_, ok, err = c.Get(ctx, "c")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Prune(ctx, nil))
			_, ok, err = c.Get(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileCache_MigratesVersionOne(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"entries":{"c:/ssp::":"fp-old"}}`), 0o644))

	c := NewFileCache(path)
	fp, ok, err := c.Get(ctx, "c:/ssp::")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fp-old", fp)

	require.NoError(t, c.Set(ctx, "other::", "fp-new"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": 2`)

	fp, ok, err = c.Get(ctx, "c:/ssp::")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fp-old", fp)
}

func TestFileCache_RejectsUnknownVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":9,"entries":{}}`), 0o644))

	c := NewFileCache(path)
	_, _, err := c.Get(ctx, "a")
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))

	// A write replaces the unreadable document.
	require.NoError(t, c.Set(ctx, "a", "fp"))
	fp, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fp", fp)
}

func TestFileCache_RejectsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingerprints.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"entries":[]}`), 0o644))

	_, _, err := NewFileCache(path).Get(context.Background(), "a")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestFileCache_MaxEntriesDropsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewFileCache(filepath.Join(t.TempDir(), "fingerprints.json"), WithMaxEntries(2))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, id, "fp-"+id))
		now = now.Add(time.Hour)
	}

	_, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	for _, id := range []string{"b", "c"} {
		_, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestFileCache_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCache(filepath.Join(dir, "fingerprints.json"))
	require.NoError(t, c.Set(context.Background(), "a", "fp"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fingerprints.json", entries[0].Name())
}
