package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatus_ReportsUninitializedByDefault(t *testing.T) {
	dir := t.TempDir()
	status := GetStatus(Config{Root: dir, HistoryBackend: "embedded"})
	assert.False(t, status.Initialized)
	assert.Equal(t, "embedded", status.HistoryBackend)
}

func TestInit_CreatesDirectoriesAndConfig(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	historyDir := filepath.Join(dir, "history")

	status, err := Init(Config{Root: dir, CacheDir: cacheDir, HistoryDir: historyDir, HistoryBackend: "objectstore"})
	require.NoError(t, err)
	assert.True(t, status.Initialized)

	_, err = os.Stat(cacheDir)
	require.NoError(t, err)
	_, err = os.Stat(historyDir)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, ".brain", "config.json"))
	require.NoError(t, err)
}

func TestInit_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, err := Init(Config{Root: dir, HistoryBackend: "embedded"})
	require.NoError(t, err)

	status, err := Init(Config{Root: dir, HistoryBackend: "embedded"})
	require.NoError(t, err)
	assert.True(t, status.Initialized)
}
