package versionstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqa-systems/brain/internal/utdl"
)

func samplePlan(stepIDs ...string) utdl.Plan {
	meta := utdl.NewMeta("checkout flow", "", nil)
	cfg := utdl.Config{BaseURL: "http://api.example.com", TimeoutMs: 5000}
	steps := make([]utdl.Step, 0, len(stepIDs))
	for _, id := range stepIDs {
		steps = append(steps, utdl.Step{
			ID:     id,
			Action: string(utdl.ActionHTTPRequest),
			Params: utdl.ValueMap{"method": utdl.String("GET"), "path": utdl.String("/" + id)},
		})
	}
	return utdl.NewPlan(meta, cfg, steps)
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("save assigns strictly increasing versions", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		v1, err := store.Save(ctx, "checkout", samplePlan("a"), SourceManual, "first", nil, "", "")
		require.NoError(t, err)
		assert.Equal(t, 1, v1.Version)

		v2, err := store.Save(ctx, "checkout", samplePlan("a", "b"), SourceLLM, "second", nil, "mock", "mock-v1")
		require.NoError(t, err)
		assert.Equal(t, 2, v2.Version)
	})

	t.Run("get_version with zero returns current", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Save(ctx, "p", samplePlan("a"), SourceManual, "", nil, "", "")
		require.NoError(t, err)
		_, err = store.Save(ctx, "p", samplePlan("a", "b"), SourceManual, "", nil, "", "")
		require.NoError(t, err)

		current, err := store.GetVersion(ctx, "p", currentVersion)
		require.NoError(t, err)
		assert.Equal(t, 2, current.Version)
	})

	t.Run("get_version for missing plan returns not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetVersion(context.Background(), "nope", currentVersion)
		assert.Error(t, err)
	})

	t.Run("diff reports added removed modified and config changes", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		p1 := samplePlan("a", "b")
		_, err := store.Save(ctx, "p", p1, SourceManual, "", nil, "", "")
		require.NoError(t, err)

		p2 := samplePlan("b", "c")
		p2.Steps[0].Params = utdl.ValueMap{"method": utdl.String("POST"), "path": utdl.String("/b")}
		p2.Config.TimeoutMs = 9000
		_, err = store.Save(ctx, "p", p2, SourceManual, "", nil, "", "")
		require.NoError(t, err)

		diff, err := store.Diff(ctx, "p", 1, 2)
		require.NoError(t, err)
		assert.True(t, diff.HasChanges)
		require.Len(t, diff.StepsAdded, 1)
		assert.Equal(t, "c", diff.StepsAdded[0].ID)
		require.Len(t, diff.StepsRemoved, 1)
		assert.Equal(t, "a", diff.StepsRemoved[0].ID)
		require.Len(t, diff.StepsModified, 1)
		assert.Equal(t, "b", diff.StepsModified[0].ID)
		require.Contains(t, diff.ConfigChanges, "timeout_ms")
	})

	t.Run("diff with no changes reports has_changes false", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		plan := samplePlan("a")
		_, err := store.Save(ctx, "p", plan, SourceManual, "", nil, "", "")
		require.NoError(t, err)
		_, err = store.Save(ctx, "p", plan, SourceManual, "", nil, "", "")
		require.NoError(t, err)

		diff, err := store.Diff(ctx, "p", 1, 2)
		require.NoError(t, err)
		assert.False(t, diff.HasChanges)
	})

	t.Run("rollback creates a new version without touching older ones", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		v1, err := store.Save(ctx, "p", samplePlan("a"), SourceManual, "v1", nil, "", "")
		require.NoError(t, err)
		_, err = store.Save(ctx, "p", samplePlan("a", "b"), SourceManual, "v2", nil, "", "")
		require.NoError(t, err)

		rolled, err := store.Rollback(ctx, "p", v1.Version, "")
		require.NoError(t, err)
		assert.Equal(t, 3, rolled.Version)
		assert.Equal(t, SourceManual, rolled.Source)
		assert.Len(t, rolled.Plan.Steps, 1)

		original, err := store.GetVersion(ctx, "p", 1)
		require.NoError(t, err)
		assert.Equal(t, "v1", original.Description, "rollback must not mutate the source version")

		versions, err := store.ListVersions(ctx, "p")
		require.NoError(t, err)
		assert.Len(t, versions, 3)
	})

	t.Run("list_plans returns every known plan sorted", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Save(ctx, "zebra", samplePlan("a"), SourceManual, "", nil, "", "")
		require.NoError(t, err)
		_, err = store.Save(ctx, "alpha", samplePlan("a"), SourceManual, "", nil, "", "")
		require.NoError(t, err)

		plans, err := store.ListPlans(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "zebra"}, plans)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestFileStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		dir := t.TempDir()
		s, err := NewFileStore(dir)
		require.NoError(t, err)
		return s
	})
}
