// Package plancache implements the content-addressed plan cache: a
// SHA-256 fingerprint of (requirement, base_url, provider?, model?) maps
// to a cached UTDL plan. A global index lock protects the hash→filename
// map; a per-fingerprint lock serializes reads/writes of one entry so
// distinct entries can proceed concurrently.
package plancache

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

const indexFileName = "index.json"

// indexEntry is the on-disk index record for one fingerprint.
type indexEntry struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is one cached plan blob as written to disk.
type Entry struct {
	Hash         string    `json:"hash"`
	CreatedAt    time.Time `json:"created_at"`
	InputSummary string    `json:"input_summary"`
	BaseURL      string    `json:"base_url"`
	Provider     string    `json:"provider,omitempty"`
	Model        string    `json:"model,omitempty"`
	Plan         utdl.Plan `json:"plan"`
}

// Config configures a file-backed Cache.
type Config struct {
	Dir      string
	Enabled  bool
	Compress bool
	TTL      time.Duration // 0 disables expiry
}

// DefaultConfig matches the original implementation's defaults.
func DefaultConfig() Config {
	return Config{Dir: ".brain_cache", Enabled: true}
}

// Stats summarizes cache occupancy.
type Stats struct {
	Enabled  bool   `json:"enabled"`
	Entries  int    `json:"entries"`
	CacheDir string `json:"cache_dir,omitempty"`
}

// Cache is a thread-safe, file-backed, fingerprint-keyed plan cache.
type Cache struct {
	cfg Config

	indexMu sync.Mutex
	index   map[string]indexEntry

	hashLocksMu sync.Mutex
	hashLocks   map[string]*sync.Mutex

	// global is an optional shared cache tier (e.g. go-redis) consulted
	// before falling back to the file-backed store, and written through
	// alongside it.
	global GlobalTier
}

// GlobalTier is the optional cross-instance cache tier a Cache can be
// backed by in addition to its local file store.
type GlobalTier interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool, error)
	Set(ctx context.Context, fingerprint string, blob []byte, ttl time.Duration) error
	Del(ctx context.Context, fingerprint string) error
}

// New constructs a Cache rooted at cfg.Dir, loading any existing index.
func New(cfg Config, global GlobalTier) (*Cache, error) {
	c := &Cache{
		cfg:       cfg,
		index:     make(map[string]indexEntry),
		hashLocks: make(map[string]*sync.Mutex),
		global:    global,
	}
	if !cfg.Enabled {
		return c, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, apierrors.Internal("failed to create cache dir", err)
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

// Fingerprint computes the stable SHA-256-derived cache key for a
// generation request: normalize (trim, lowercase) each component,
// concatenate with `|`, hash, keep the first 16 hex characters.
// provider/model are omitted when empty, for backward compatibility with
// fingerprints computed before those fields existed.
func Fingerprint(requirement, baseURL, provider, model string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(requirement)),
		strings.ToLower(strings.TrimSpace(baseURL)),
	}
	if provider != "" {
		parts = append(parts, "provider:"+strings.ToLower(strings.TrimSpace(provider)))
	}
	if model != "" {
		parts = append(parts, "model:"+strings.ToLower(strings.TrimSpace(model)))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *Cache) hashLock(fingerprint string) *sync.Mutex {
	c.hashLocksMu.Lock()
	defer c.hashLocksMu.Unlock()
	l, ok := c.hashLocks[fingerprint]
	if !ok {
		l = &sync.Mutex{}
		c.hashLocks[fingerprint] = l
	}
	return l
}

// Get returns the cached plan for the given inputs, or !ok on a miss
// (including an expired entry, which is treated as a miss and cleaned up
// passively).
func (c *Cache) Get(ctx context.Context, requirement, baseURL, provider, model string) (utdl.Plan, bool, error) {
	if !c.cfg.Enabled {
		return utdl.Plan{}, false, nil
	}

	fingerprint := Fingerprint(requirement, baseURL, provider, model)
	lock := c.hashLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	if c.global != nil {
		if blob, ok, err := c.global.Get(ctx, fingerprint); err == nil && ok {
			entry, err := c.decodeEntry(blob)
			if err == nil {
				return entry.Plan, true, nil
			}
		}
	}

	c.indexMu.Lock()
	idx, ok := c.index[fingerprint]
	c.indexMu.Unlock()
	if !ok {
		return utdl.Plan{}, false, nil
	}

	if c.cfg.TTL > 0 && time.Since(idx.CreatedAt) > c.cfg.TTL {
		c.removeLocked(fingerprint)
		return utdl.Plan{}, false, nil
	}

	blob, err := os.ReadFile(filepath.Join(c.cfg.Dir, idx.Filename))
	if os.IsNotExist(err) {
		c.removeLocked(fingerprint)
		return utdl.Plan{}, false, nil
	}
	if err != nil {
		return utdl.Plan{}, false, apierrors.Internal("failed to read cache entry", err)
	}

	entry, err := c.decodeEntry(blob)
	if err != nil {
		return utdl.Plan{}, false, apierrors.Internal("failed to decode cache entry", err)
	}
	return entry.Plan, true, nil
}

// Store writes plan into the cache under the fingerprint for the given
// inputs and returns that fingerprint.
func (c *Cache) Store(ctx context.Context, requirement, baseURL, provider, model string, plan utdl.Plan) (string, error) {
	if !c.cfg.Enabled {
		return "", nil
	}

	fingerprint := Fingerprint(requirement, baseURL, provider, model)
	lock := c.hashLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	summary := requirement
	if len(summary) > 100 {
		summary = summary[:100] + "..."
	}

	entry := Entry{
		Hash:         fingerprint,
		CreatedAt:    time.Now().UTC(),
		InputSummary: summary,
		BaseURL:      baseURL,
		Provider:     provider,
		Model:        model,
		Plan:         plan,
	}

	blob, err := c.encodeEntry(entry)
	if err != nil {
		return "", apierrors.Internal("failed to encode cache entry", err)
	}

	ext := ".json"
	if c.cfg.Compress {
		ext = ".json.gz"
	}
	filename := fingerprint + ext

	if err := os.WriteFile(filepath.Join(c.cfg.Dir, filename), blob, 0o644); err != nil {
		return "", apierrors.Internal("failed to write cache entry", err)
	}

	c.indexMu.Lock()
	c.index[fingerprint] = indexEntry{Filename: filename, CreatedAt: entry.CreatedAt}
	saveErr := c.saveIndexLocked()
	c.indexMu.Unlock()
	if saveErr != nil {
		return "", saveErr
	}

	if c.global != nil {
		_ = c.global.Set(ctx, fingerprint, blob, c.cfg.TTL)
	}

	return fingerprint, nil
}

// Invalidate removes the entry for the given inputs, reporting whether one
// existed.
func (c *Cache) Invalidate(ctx context.Context, requirement, baseURL, provider, model string) (bool, error) {
	if !c.cfg.Enabled {
		return false, nil
	}
	fingerprint := Fingerprint(requirement, baseURL, provider, model)
	lock := c.hashLock(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	if c.global != nil {
		_ = c.global.Del(ctx, fingerprint)
	}

	c.indexMu.Lock()
	_, existed := c.index[fingerprint]
	c.indexMu.Unlock()
	if !existed {
		return false, nil
	}
	return true, c.removeLocked(fingerprint)
}

// removeLocked deletes a fingerprint's blob and index entry. Caller must
// hold that fingerprint's hash lock.
func (c *Cache) removeLocked(fingerprint string) error {
	c.indexMu.Lock()
	idx, ok := c.index[fingerprint]
	if ok {
		delete(c.index, fingerprint)
	}
	err := c.saveIndexLocked()
	c.indexMu.Unlock()
	if !ok {
		return err
	}
	_ = os.Remove(filepath.Join(c.cfg.Dir, idx.Filename))
	return err
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	if !c.cfg.Enabled {
		return 0, nil
	}

	c.indexMu.Lock()
	count := len(c.index)
	for _, idx := range c.index {
		_ = os.Remove(filepath.Join(c.cfg.Dir, idx.Filename))
	}
	c.index = make(map[string]indexEntry)
	err := c.saveIndexLocked()
	c.indexMu.Unlock()

	c.hashLocksMu.Lock()
	c.hashLocks = make(map[string]*sync.Mutex)
	c.hashLocksMu.Unlock()

	return count, err
}

// Stats reports current occupancy.
func (c *Cache) Stats(ctx context.Context) Stats {
	if !c.cfg.Enabled {
		return Stats{Enabled: false}
	}
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	return Stats{Enabled: true, Entries: len(c.index), CacheDir: c.cfg.Dir}
}

// SweepExpired drops every entry older than the configured TTL. Intended
// to be run periodically (see Scheduler) rather than relying solely on
// Get's passive expiry.
func (c *Cache) SweepExpired(ctx context.Context) int {
	if !c.cfg.Enabled || c.cfg.TTL <= 0 {
		return 0
	}

	c.indexMu.Lock()
	var expired []string
	for fp, idx := range c.index {
		if time.Since(idx.CreatedAt) > c.cfg.TTL {
			expired = append(expired, fp)
		}
	}
	c.indexMu.Unlock()

	for _, fp := range expired {
		lock := c.hashLock(fp)
		lock.Lock()
		_ = c.removeLocked(fp)
		lock.Unlock()
	}
	return len(expired)
}

func (c *Cache) loadIndex() error {
	path := filepath.Join(c.cfg.Dir, indexFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apierrors.Internal("failed to read cache index", err)
	}

	var raw map[string]indexEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		// A corrupt index is treated as empty, matching the original's
		// tolerant reload behaviour, rather than a hard failure.
		c.index = make(map[string]indexEntry)
		return nil
	}
	c.index = raw
	return nil
}

// saveIndexLocked persists the index. Caller must hold indexMu.
func (c *Cache) saveIndexLocked() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return apierrors.Internal("failed to encode cache index", err)
	}
	path := filepath.Join(c.cfg.Dir, indexFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apierrors.Internal("failed to write cache index", err)
	}
	return nil
}

func (c *Cache) encodeEntry(entry Entry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	if !c.cfg.Compress {
		return data, nil
	}

	var buf strings.Builder
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

func (c *Cache) decodeEntry(blob []byte) (Entry, error) {
	var entry Entry
	if c.cfg.Compress && isGzip(blob) {
		gz, err := gzip.NewReader(strings.NewReader(string(blob)))
		if err != nil {
			return entry, err
		}
		defer gz.Close()
		data, err := io.ReadAll(gz)
		if err != nil {
			return entry, err
		}
		return entry, json.Unmarshal(data, &entry)
	}
	return entry, json.Unmarshal(blob, &entry)
}

func isGzip(blob []byte) bool {
	return len(blob) > 2 && blob[0] == 0x1f && blob[1] == 0x8b
}
