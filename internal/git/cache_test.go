package git

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	cache, err := OpenQueryCache(path)
	require.NoError(t, err)
	require.NoError(t, cache.Put("created:src/A.java", "2019-06-01"))

	var got string
	found, err := cache.Get("created:src/A.java", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2019-06-01", got)

	found, err = cache.Get("created:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, cache.Close())

	// Values survive reopening.
	cache, err = OpenQueryCache(path)
	require.NoError(t, err)
	defer cache.Close()

	got = ""
	found, err = cache.Get("created:src/A.java", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "2019-06-01", got)
}
