package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string, ts time.Time, status Status, tags ...string) Record {
	return Record{
		ID:          id,
		Timestamp:   ts,
		PlanFile:    "plans/" + id + ".json",
		PlanName:    "sample-" + id,
		PlanHash:    "hash-" + id,
		Status:      status,
		DurationMs:  123.4,
		TotalSteps:  3,
		PassedSteps: 2,
		FailedSteps: 1,
		Tags:        tags,
		Metadata:    map[string]interface{}{"env": "ci"},
		RunnerReport: json.RawMessage(`{"summary":{"total":3}}`),
	}
}

// runBackendSuite exercises the shared Backend contract against any
// constructor, used for both ObjectStoreBackend and FileTreeBackend since
// they share an on-disk layout.
func runBackendSuite(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Run("save then get round trips including runner report", func(t *testing.T) {
		b := newBackend(t)
		rec := sampleRecord("exec-1", time.Now().UTC(), StatusSuccess, "smoke")
		require.NoError(t, b.Save(context.Background(), rec))

		got, err := b.Get(context.Background(), "exec-1")
		require.NoError(t, err)
		assert.Equal(t, rec.PlanName, got.PlanName)
		assert.Equal(t, rec.Status, got.Status)
		assert.JSONEq(t, string(rec.RunnerReport), string(got.RunnerReport))
	})

	t.Run("save is idempotent for the same id", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		first := sampleRecord("exec-2", time.Now().UTC(), StatusFailure)
		require.NoError(t, b.Save(ctx, first))

		updated := first
		updated.Status = StatusSuccess
		require.NoError(t, b.Save(ctx, updated))

		got, err := b.Get(ctx, "exec-2")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, got.Status)

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Total)
	})

	t.Run("get for missing id returns not found", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Get(context.Background(), "does-not-exist")
		require.Error(t, err)
	})

	t.Run("list returns most-recent-first", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		require.NoError(t, b.Save(ctx, sampleRecord("a", base, StatusSuccess)))
		require.NoError(t, b.Save(ctx, sampleRecord("b", base.Add(10*time.Minute), StatusSuccess)))
		require.NoError(t, b.Save(ctx, sampleRecord("c", base.Add(20*time.Minute), StatusSuccess)))

		records, err := b.List(ctx, ListFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "c", records[0].ID)
		assert.Equal(t, "b", records[1].ID)
		assert.Equal(t, "a", records[2].ID)
	})

	t.Run("list applies AND-composed filters", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		now := time.Now().UTC()
		require.NoError(t, b.Save(ctx, sampleRecord("match", now, StatusSuccess, "smoke", "nightly")))
		require.NoError(t, b.Save(ctx, sampleRecord("wrong-status", now, StatusFailure, "smoke", "nightly")))
		require.NoError(t, b.Save(ctx, sampleRecord("wrong-tag", now, StatusSuccess, "smoke")))

		success := StatusSuccess
		records, err := b.List(ctx, ListFilter{Limit: 10, Status: &success, Tags: []string{"smoke", "nightly"}})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "match", records[0].ID)
	})

	t.Run("delete removes a record and reports prior existence", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, sampleRecord("to-delete", time.Now().UTC(), StatusSuccess)))

		ok, err := b.Delete(ctx, "to-delete")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.Delete(ctx, "to-delete")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = b.Get(ctx, "to-delete")
		require.Error(t, err)
	})

	t.Run("stats counts by status", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		now := time.Now().UTC()
		require.NoError(t, b.Save(ctx, sampleRecord("s1", now, StatusSuccess)))
		require.NoError(t, b.Save(ctx, sampleRecord("f1", now, StatusFailure)))
		require.NoError(t, b.Save(ctx, sampleRecord("e1", now, StatusError)))

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 1, stats.SuccessCount)
		assert.Equal(t, 1, stats.FailureCount)
		assert.Equal(t, 1, stats.ErrorCount)
	})

	t.Run("clear removes every record", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		require.NoError(t, b.Save(ctx, sampleRecord("c1", time.Now().UTC(), StatusSuccess)))
		require.NoError(t, b.Save(ctx, sampleRecord("c2", time.Now().UTC(), StatusSuccess)))

		n, err := b.Clear(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Total)
	})
}

func TestObjectStoreBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		b, err := NewObjectStoreBackend(t.TempDir(), true)
		require.NoError(t, err)
		return b
	})
}

func TestFileTreeBackend(t *testing.T) {
	runBackendSuite(t, func(t *testing.T) Backend {
		b, err := NewFileTreeBackend(t.TempDir(), false)
		require.NoError(t, err)
		return b
	})
}

func TestObjectStoreBackend_IndexSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewObjectStoreBackend(dir, true)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sampleRecord("persisted", time.Now().UTC(), StatusSuccess)))

	second, err := NewObjectStoreBackend(dir, true)
	require.NoError(t, err)
	got, err := second.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.ID)
}

func TestObjectStoreBackend_RebuildIndexRecoversFromLostIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewObjectStoreBackend(dir, true)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleRecord("orphan", time.Now().UTC(), StatusSuccess)))

	store.mu.Lock()
	store.index = map[string]string{}
	store.records = map[string]Record{}
	store.mu.Unlock()

	n, err := store.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, "orphan", got.ID)
}

func TestFileTreeBackend_MigrateReplaysIntoDestination(t *testing.T) {
	ctx := context.Background()
	legacy, err := NewFileTreeBackend(t.TempDir(), false)
	require.NoError(t, err)
	require.NoError(t, legacy.Save(ctx, sampleRecord("m1", time.Now().UTC(), StatusSuccess)))
	require.NoError(t, legacy.Save(ctx, sampleRecord("m2", time.Now().UTC(), StatusFailure)))

	dest, err := NewObjectStoreBackend(t.TempDir(), true)
	require.NoError(t, err)

	migrated, err := legacy.Migrate(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, 2, migrated)

	stats, err := dest.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
}

func TestPruneOlderThan_RemovesOnlyExpiredRecords(t *testing.T) {
	ctx := context.Background()
	b, err := NewObjectStoreBackend(t.TempDir(), false)
	require.NoError(t, err)

	require.NoError(t, b.Save(ctx, sampleRecord("old", time.Now().UTC().Add(-48*time.Hour), StatusSuccess)))
	require.NoError(t, b.Save(ctx, sampleRecord("recent", time.Now().UTC(), StatusSuccess)))

	removed, err := pruneOlderThan(ctx, b, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = b.Get(ctx, "old")
	require.Error(t, err)
	_, err = b.Get(ctx, "recent")
	require.NoError(t, err)
}

func TestNewFromEnv_PrecedenceExplicitOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AQA_STORAGE_BACKEND", "filetree")
	t.Setenv("AQA_HISTORY_BUCKET_DIR", "")

	b, err := NewFromEnv(Config{Backend: "objectstore", BaseDir: dir})
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.(*ObjectStoreBackend)
	assert.True(t, ok)
}

func TestNewFromEnv_BucketEnvSelectsObjectStoreOverDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AQA_STORAGE_BACKEND", "")
	t.Setenv("AQA_HISTORY_BUCKET_DIR", dir)

	b, err := NewFromEnv(Config{})
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.(*ObjectStoreBackend)
	assert.True(t, ok)
}

func TestNewFromEnv_DefaultsToEmbeddedRequiringDB(t *testing.T) {
	t.Setenv("AQA_STORAGE_BACKEND", "")
	t.Setenv("AQA_HISTORY_BUCKET_DIR", "")

	_, err := NewFromEnv(Config{})
	require.Error(t, err)
}
