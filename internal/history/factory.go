package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/aqa-systems/brain/pkg/apierrors"
)

// Config configures NewFromEnv's backend construction.
type Config struct {
	// Backend explicitly selects "embedded", "objectstore", or "filetree".
	// Empty defers to AQA_STORAGE_BACKEND, then bucket-env presence.
	Backend string
	DB      *sql.DB // required for "embedded"
	BaseDir string  // for "objectstore"/"filetree"; empty falls back to a default directory
	Compress bool
}

const (
	backendEmbedded   = "embedded"
	backendObjectStore = "objectstore"
	backendFileTree   = "filetree"
)

// NewFromEnv selects and constructs a Backend following the precedence:
// explicit cfg.Backend > AQA_STORAGE_BACKEND env > presence of
// AQA_HISTORY_BUCKET_DIR env (object store) > default (embedded).
func NewFromEnv(cfg Config) (Backend, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = strings.ToLower(strings.TrimSpace(os.Getenv("AQA_STORAGE_BACKEND")))
	}
	if backend == "" && os.Getenv("AQA_HISTORY_BUCKET_DIR") != "" {
		backend = backendObjectStore
	}
	if backend == "" {
		backend = backendEmbedded
	}

	switch backend {
	case backendEmbedded:
		if cfg.DB == nil {
			return nil, apierrors.InvalidConfig("history.db", "embedded backend requires a database connection")
		}
		return NewEmbeddedBackend(cfg.DB, cfg.Compress)
	case backendObjectStore:
		dir := cfg.BaseDir
		if dir == "" {
			dir = os.Getenv("AQA_HISTORY_BUCKET_DIR")
		}
		if dir == "" {
			dir = defaultHistoryDir("objectstore")
		}
		return NewObjectStoreBackend(dir, cfg.Compress)
	case backendFileTree:
		dir := cfg.BaseDir
		if dir == "" {
			dir = defaultHistoryDir("filetree")
		}
		return NewFileTreeBackend(dir, cfg.Compress)
	default:
		return nil, apierrors.InvalidConfig("history.backend", "unknown storage backend: "+backend)
	}
}

func defaultHistoryDir(kind string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".aqa", "history", kind)
}
