package geocode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_Layout(t *testing.T) {
	root := t.TempDir()
	_, err := NewCache(root)
	require.NoError(t, err)

	for _, dir := range []string{
		"census/success", "census/fail", "google/success", "google/fail",
	} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestCache_SuccessRoundTrip(t *testing.T) {
	c := newTestCache(t)

	assert.False(t, c.HasSuccess(SourceCensus, "abc"))

	payload := []byte(`{"result":{"addressMatches":[]}}`)
	require.NoError(t, c.WriteSuccess(SourceCensus, "abc", payload))

	assert.True(t, c.HasSuccess(SourceCensus, "abc"))
	assert.False(t, c.HasSuccess(SourceGoogle, "abc"))

	got, err := c.ReadSuccess(SourceCensus, "abc")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCache_FailureMarker(t *testing.T) {
	c := newTestCache(t)

	assert.False(t, c.HasFailure(SourceGoogle, "abc"))
	require.NoError(t, c.WriteFailure(SourceGoogle, "abc"))
	assert.True(t, c.HasFailure(SourceGoogle, "abc"))

	data, err := os.ReadFile(filepath.Join(c.Root(), "google", "fail", "abc.json"))
	require.NoError(t, err)
	assert.Equal(t, failureSentinel, string(data))
}

func TestCache_WriteLeavesNoTempFiles(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.WriteSuccess(SourceCensus, "abc", []byte("{}")))

	entries, err := os.ReadDir(filepath.Join(c.Root(), "census", "success"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc.json", entries[0].Name())
}

func TestCache_CountEntries(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.WriteSuccess(SourceCensus, "a", []byte("{}")))
	require.NoError(t, c.WriteSuccess(SourceCensus, "b", []byte("{}")))
	require.NoError(t, c.WriteFailure(SourceCensus, "c"))

	successes, failures, err := c.CountEntries(SourceCensus)
	require.NoError(t, err)
	assert.Equal(t, 2, successes)
	assert.Equal(t, 1, failures)
}
