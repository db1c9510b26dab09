package history

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aqa-systems/brain/pkg/apierrors"
)

// ObjectStoreBackend is a filesystem-backed object store: one object per
// record (gzip-compressed when compress is set) under a day-prefix
// directory, plus a single index.json
// mapping id to its object key. Writes are serialized by an in-process
// lock and land via write-temp-then-rename so a crash never leaves a
// partial object or index visible.
//
// The original implementation's equivalent backend targets a cloud bucket
// (S3); this port keeps the same day-prefix/index/atomic-put shape but
// targets a local directory tree, since cloud SDK credentials are out of
// scope here.
type ObjectStoreBackend struct {
	baseDir  string
	compress bool

	mu      sync.Mutex
	index   map[string]string // id -> relative object key
	records map[string]Record // id -> cached summary (no runner report)
}

var _ Backend = (*ObjectStoreBackend)(nil)

const objectStoreIndexName = "index.json"

// NewObjectStoreBackend opens (or initializes) an object store rooted at
// baseDir.
func NewObjectStoreBackend(baseDir string, compress bool) (*ObjectStoreBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apierrors.Internal("failed to create object store directory", err)
	}
	b := &ObjectStoreBackend{
		baseDir:  baseDir,
		compress: compress,
		index:    map[string]string{},
		records:  map[string]Record{},
	}
	if err := b.loadIndex(); err != nil {
		return nil, err
	}
	return b, nil
}

type indexFile struct {
	Entries map[string]indexEntry `json:"entries"`
}

type indexEntry struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	PlanName  string    `json:"plan_name,omitempty"`
	PlanHash  string    `json:"plan_hash,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

func (b *ObjectStoreBackend) indexPath() string {
	return filepath.Join(b.baseDir, objectStoreIndexName)
}

func (b *ObjectStoreBackend) loadIndex() error {
	raw, err := os.ReadFile(b.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierrors.Internal("failed to read object store index", err)
	}
	var idx indexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return apierrors.Internal("failed to decode object store index", err)
	}
	for id, e := range idx.Entries {
		b.index[id] = e.Key
		b.records[id] = Record{
			ID:        id,
			Timestamp: e.Timestamp,
			Status:    e.Status,
			PlanName:  e.PlanName,
			PlanHash:  e.PlanHash,
			Tags:      e.Tags,
		}
	}
	return nil
}

// saveIndexLocked persists the index atomically. Caller must hold b.mu.
func (b *ObjectStoreBackend) saveIndexLocked() error {
	entries := make(map[string]indexEntry, len(b.index))
	for id, key := range b.index {
		r := b.records[id]
		entries[id] = indexEntry{Key: key, Timestamp: r.Timestamp, Status: r.Status, PlanName: r.PlanName, PlanHash: r.PlanHash, Tags: r.Tags}
	}
	raw, err := json.Marshal(indexFile{Entries: entries})
	if err != nil {
		return apierrors.Internal("failed to encode object store index", err)
	}
	return atomicWrite(b.indexPath(), raw)
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apierrors.Internal("failed to create directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apierrors.Internal("failed to write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apierrors.Internal("failed to finalize file", err)
	}
	return nil
}

func objectKey(id string, ts time.Time, compress bool) string {
	ext := ".json"
	if compress {
		ext = ".json.gz"
	}
	return filepath.Join(ts.UTC().Format("2006/01/02"), id+ext)
}

// Save writes record as a new (or replacing) object and updates the index.
func (b *ObjectStoreBackend) Save(ctx context.Context, record Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existingKey, ok := b.index[record.ID]; ok {
		_ = os.Remove(filepath.Join(b.baseDir, existingKey))
	}

	key := objectKey(record.ID, record.Timestamp, b.compress)
	raw, err := json.Marshal(record)
	if err != nil {
		return apierrors.Internal("failed to encode execution record", err)
	}
	if b.compress {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return apierrors.Internal("failed to compress execution record", err)
		}
		if err := w.Close(); err != nil {
			return apierrors.Internal("failed to compress execution record", err)
		}
		raw = buf.Bytes()
	}

	if err := atomicWrite(filepath.Join(b.baseDir, key), raw); err != nil {
		return err
	}

	b.index[record.ID] = key
	summary := record
	summary.RunnerReport = nil
	b.records[record.ID] = summary
	return b.saveIndexLocked()
}

func (b *ObjectStoreBackend) readObject(key string) (Record, error) {
	raw, err := os.ReadFile(filepath.Join(b.baseDir, key))
	if err != nil {
		return Record{}, apierrors.Internal("failed to read execution object", err)
	}
	if filepath.Ext(key) == ".gz" {
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return Record{}, apierrors.Internal("failed to decompress execution object", err)
		}
		defer r.Close()
		raw, err = io.ReadAll(r)
		if err != nil {
			return Record{}, apierrors.Internal("failed to decompress execution object", err)
		}
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, apierrors.Internal("failed to decode execution object", err)
	}
	return rec, nil
}

// Get returns one record, including its runner report.
func (b *ObjectStoreBackend) Get(ctx context.Context, id string) (Record, error) {
	b.mu.Lock()
	key, ok := b.index[id]
	b.mu.Unlock()
	if !ok {
		return Record{}, apierrors.NotFound("execution", id)
	}
	return b.readObject(key)
}

// List returns cached summaries most-recent-first, applying filters.
func (b *ObjectStoreBackend) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	b.mu.Lock()
	all := make([]Record, 0, len(b.records))
	for _, r := range b.records {
		all = append(all, r)
	}
	b.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })

	matched := make([]Record, 0, len(all))
	for _, r := range all {
		if matchesFilter(r, filter) {
			matched = append(matched, r)
		}
	}

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Delete removes one object and its index entry.
func (b *ObjectStoreBackend) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key, ok := b.index[id]
	if !ok {
		return false, nil
	}
	_ = os.Remove(filepath.Join(b.baseDir, key))
	delete(b.index, id)
	delete(b.records, id)
	if err := b.saveIndexLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// Stats summarizes the cached index.
func (b *ObjectStoreBackend) Stats(ctx context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{Backend: "objectstore", Total: len(b.records)}
	for _, r := range b.records {
		switch r.Status {
		case StatusSuccess:
			stats.SuccessCount++
		case StatusFailure:
			stats.FailureCount++
		case StatusError:
			stats.ErrorCount++
		}
		if stats.Oldest == nil || r.Timestamp.Before(*stats.Oldest) {
			t := r.Timestamp
			stats.Oldest = &t
		}
		if stats.Newest == nil || r.Timestamp.After(*stats.Newest) {
			t := r.Timestamp
			stats.Newest = &t
		}
	}
	return stats, nil
}

// Clear removes every object and resets the index.
func (b *ObjectStoreBackend) Clear(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.index)
	for _, key := range b.index {
		_ = os.Remove(filepath.Join(b.baseDir, key))
	}
	b.index = map[string]string{}
	b.records = map[string]Record{}
	if err := b.saveIndexLocked(); err != nil {
		return 0, err
	}
	return n, nil
}

// Close is a no-op; the backend holds no persistent connection.
func (b *ObjectStoreBackend) Close() error { return nil }

// RebuildIndex scans baseDir for record objects and rebuilds the index
// from scratch, recovering from a lost or corrupted index.json.
func (b *ObjectStoreBackend) RebuildIndex(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	index := map[string]string{}
	records := map[string]Record{}

	err := filepath.WalkDir(b.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Base(path) == objectStoreIndexName {
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return err
		}
		rec, err := b.readObject(rel)
		if err != nil {
			return nil // skip unreadable objects rather than abort the scan
		}
		index[rec.ID] = rel
		summary := rec
		summary.RunnerReport = nil
		records[rec.ID] = summary
		return nil
	})
	if err != nil {
		return 0, apierrors.Internal("failed to rebuild object store index", err)
	}

	b.index = index
	b.records = records
	if err := b.saveIndexLocked(); err != nil {
		return 0, err
	}
	return len(index), nil
}
