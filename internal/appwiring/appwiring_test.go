package appwiring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setFileEnv points every filesystem-backed dependency at a fresh temp
// directory and selects the filetree/file-store backends so Build needs no
// database connection.
func setFileEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BRAIN_ENV", "testing")
	t.Setenv("AQA_STORAGE_BACKEND", "filetree")
	t.Setenv("AQA_STORAGE_PATH", filepath.Join(dir, "storage"))
	t.Setenv("BRAIN_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("BRAIN_HISTORY_DIR", filepath.Join(dir, "history"))
	t.Setenv("AQA_LLM_MODE", "mock")
	t.Setenv("DATABASE_URL", "")
	return dir
}

func TestBuildWiresFileBackedStack(t *testing.T) {
	setFileEnv(t)

	bundle, err := Build(Options{})
	require.NoError(t, err)
	require.NotNil(t, bundle)
	defer bundle.Close()

	assert.Nil(t, bundle.DB)
	assert.NotNil(t, bundle.Generator)
	assert.NotNil(t, bundle.Validator)
	assert.NotNil(t, bundle.Orchestrator)
	assert.NotNil(t, bundle.History)
	assert.NotNil(t, bundle.Versions)
	assert.NotNil(t, bundle.Cache)
	assert.Equal(t, ".", bundle.Workspace.Root)
	assert.Same(t, bundle.Orchestrator, bundle.Workspace.Orchestrator)
}

func TestBuildDisablesCacheWhenConfigured(t *testing.T) {
	setFileEnv(t)
	t.Setenv("BRAIN_CACHE_ENABLED", "false")

	bundle, err := Build(Options{})
	require.NoError(t, err)
	defer bundle.Close()

	assert.Nil(t, bundle.Cache)
	assert.Nil(t, bundle.Scheduler)
	// Generator must still work with caching off: Cache should be a real
	// nil interface, not a typed nil wrapping *plancache.GeneratorAdapter.
	assert.Nil(t, bundle.Generator.Cache)
}

func TestAddrPrefersFlagThenConfigThenDefault(t *testing.T) {
	setFileEnv(t)

	bundle, err := Build(Options{})
	require.NoError(t, err)
	defer bundle.Close()

	assert.Equal(t, "127.0.0.1:9000", bundle.Addr("127.0.0.1:9000"))
	assert.Equal(t, bundle.Config.Addr, bundle.Addr(""))
}

func TestBuildRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("BRAIN_ENV", "not-a-real-env")

	bundle, err := Build(Options{})
	assert.Error(t, err)
	assert.Nil(t, bundle)
}

func TestBuildSelectsMemoryVersionStoreWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRAIN_ENV", "testing")
	t.Setenv("AQA_STORAGE_BACKEND", "memory")
	t.Setenv("BRAIN_HISTORY_BACKEND", "filetree")
	t.Setenv("BRAIN_HISTORY_DIR", filepath.Join(dir, "history"))
	t.Setenv("BRAIN_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("DATABASE_URL", "")

	bundle, err := Build(Options{})
	require.NoError(t, err)
	defer bundle.Close()

	names, err := bundle.Versions.ListPlans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
