// Package workspace reports on and scaffolds the local working directory
// a brain deployment runs out of (cache/history directories, executor
// resolvability). Scaffolding here is limited to directory/config-file
// creation; onboarding UX (prompts, templates) is out of scope.
package workspace

import (
	"os"
	"path/filepath"

	"github.com/aqa-systems/brain/internal/orchestrator"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// Status reports the resolvability and location of every pluggable
// subsystem a workspace depends on.
type Status struct {
	ExecutorPath      string `json:"executor_path,omitempty"`
	ExecutorAvailable bool   `json:"executor_available"`
	ExecutorError     string `json:"executor_error,omitempty"`

	CacheDir        string `json:"cache_dir,omitempty"`
	HistoryBackend  string `json:"history_backend"`
	HistoryDir      string `json:"history_dir,omitempty"`

	ConfigPath   string `json:"config_path"`
	Initialized  bool   `json:"initialized"`
}

// Config locates the workspace's on-disk layout.
type Config struct {
	Root           string // workspace root directory, default "."
	CacheDir       string
	HistoryBackend string
	HistoryDir     string
	Orchestrator   *orchestrator.Orchestrator
}

func (c Config) configPath() string {
	root := c.Root
	if root == "" {
		root = "."
	}
	return filepath.Join(root, ".brain", "config.json")
}

// GetStatus reports the current workspace's subsystem reachability. It
// never errors: unresolvable components are reflected in the Status
// fields, not returned as a Go error, since "not yet configured" is an
// expected state for this read-only endpoint.
func GetStatus(cfg Config) Status {
	status := Status{
		CacheDir:       cfg.CacheDir,
		HistoryBackend: cfg.HistoryBackend,
		HistoryDir:     cfg.HistoryDir,
		ConfigPath:     cfg.configPath(),
	}

	if _, err := os.Stat(status.ConfigPath); err == nil {
		status.Initialized = true
	}

	if cfg.Orchestrator != nil {
		if path, err := cfg.Orchestrator.ResolveExecutor(); err != nil {
			status.ExecutorError = err.Error()
		} else {
			status.ExecutorPath = path
			status.ExecutorAvailable = true
		}
	}

	return status
}

// Init scaffolds the workspace's local directories and a minimal config
// file, and is idempotent: calling it on an already-initialized workspace
// is a no-op beyond ensuring the directories still exist.
func Init(cfg Config) (Status, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}

	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return Status{}, apierrors.Internal("failed to create cache directory", err)
		}
	}
	if cfg.HistoryDir != "" {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return Status{}, apierrors.Internal("failed to create history directory", err)
		}
	}

	configDir := filepath.Join(root, ".brain")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return Status{}, apierrors.Internal("failed to create workspace config directory", err)
	}

	configPath := cfg.configPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		payload := []byte("{\n  \"history_backend\": \"" + cfg.HistoryBackend + "\"\n}\n")
		if err := os.WriteFile(configPath, payload, 0o644); err != nil {
			return Status{}, apierrors.Internal("failed to write workspace config", err)
		}
	}

	return GetStatus(cfg), nil
}
