package history

import (
	"context"
	"sort"
)

// FileTreeBackend is the legacy on-disk format: one JSON(.gz) file per
// record under a date-partitioned directory, plus a single index.json
// summary file. New deployments should prefer EmbeddedBackend or
// ObjectStoreBackend; this backend exists so old history directories keep
// working and can be migrated forward.
type FileTreeBackend struct {
	os *ObjectStoreBackend
}

var _ Backend = (*FileTreeBackend)(nil)

// NewFileTreeBackend opens a legacy history directory. It reuses
// ObjectStoreBackend's on-disk layout (day-prefix objects + index.json),
// since the original file tree and object store formats are structurally
// identical — only the deployment intent (local legacy dir vs. a synced
// remote-backed directory) differs.
func NewFileTreeBackend(dir string, compress bool) (*FileTreeBackend, error) {
	store, err := NewObjectStoreBackend(dir, compress)
	if err != nil {
		return nil, err
	}
	return &FileTreeBackend{os: store}, nil
}

func (b *FileTreeBackend) Save(ctx context.Context, record Record) error {
	return b.os.Save(ctx, record)
}

func (b *FileTreeBackend) Get(ctx context.Context, id string) (Record, error) {
	return b.os.Get(ctx, id)
}

func (b *FileTreeBackend) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	return b.os.List(ctx, filter)
}

func (b *FileTreeBackend) Delete(ctx context.Context, id string) (bool, error) {
	return b.os.Delete(ctx, id)
}

func (b *FileTreeBackend) Stats(ctx context.Context) (Stats, error) {
	stats, err := b.os.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Backend = "filetree"
	return stats, nil
}

func (b *FileTreeBackend) Clear(ctx context.Context) (int, error) {
	return b.os.Clear(ctx)
}

func (b *FileTreeBackend) Close() error { return b.os.Close() }

// Migrate replays every record in this legacy tree into dest, in ascending
// timestamp order, and returns how many records were migrated.
func (b *FileTreeBackend) Migrate(ctx context.Context, dest Backend) (int, error) {
	records, err := b.List(ctx, ListFilter{Limit: 1 << 30})
	if err != nil {
		return 0, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })

	migrated := 0
	for _, summary := range records {
		full, err := b.Get(ctx, summary.ID)
		if err != nil {
			continue
		}
		if err := dest.Save(ctx, full); err != nil {
			return migrated, err
		}
		migrated++
	}
	return migrated, nil
}

// RebuildIndex recovers index.json by rescanning the directory tree,
// for index.json-less directories inherited from very old deployments.
func (b *FileTreeBackend) RebuildIndex(ctx context.Context) (int, error) {
	return b.os.RebuildIndex(ctx)
}
