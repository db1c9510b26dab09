package versionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// FileStore is a Store that keeps one append-only JSON file per plan name
// under a root directory, for workspace use without a database. One
// store-wide mutex serializes the read-modify-write cycle that advances a
// plan's version counter, for all plan names at once; there is no separate
// lock per plan name.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore roots a FileStore at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierrors.Internal("failed to create version store dir", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) planPath(planName string) string {
	return filepath.Join(s.dir, planName+".json")
}

func (s *FileStore) readLocked(planName string) ([]PlanVersion, error) {
	data, err := os.ReadFile(s.planPath(planName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Internal("failed to read plan versions", err)
	}
	var vs []PlanVersion
	if err := json.Unmarshal(data, &vs); err != nil {
		return nil, apierrors.Internal("failed to decode plan versions", err)
	}
	return vs, nil
}

func (s *FileStore) writeLocked(planName string, vs []PlanVersion) error {
	data, err := json.MarshalIndent(vs, "", "  ")
	if err != nil {
		return apierrors.Internal("failed to encode plan versions", err)
	}
	if err := os.WriteFile(s.planPath(planName), data, 0o644); err != nil {
		return apierrors.Internal("failed to write plan versions", err)
	}
	return nil
}

// ListPlans returns every plan name with a version file, sorted.
func (s *FileStore) ListPlans(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apierrors.Internal("failed to list version store dir", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(ext)])
	}
	sort.Strings(names)
	return names, nil
}

// ListVersions returns every version of planName, oldest first.
func (s *FileStore) ListVersions(ctx context.Context, planName string) ([]PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.readLocked(planName)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		return nil, apierrors.NotFound("plan", planName)
	}
	return vs, nil
}

// GetVersion returns planName's version (1-based), or the current (highest)
// when version == 0.
func (s *FileStore) GetVersion(ctx context.Context, planName string, version int) (PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.readLocked(planName)
	if err != nil {
		return PlanVersion{}, err
	}
	return selectVersion(planName, vs, version)
}

func selectVersion(planName string, vs []PlanVersion, version int) (PlanVersion, error) {
	if len(vs) == 0 {
		return PlanVersion{}, apierrors.NotFound("plan", planName)
	}
	if version == currentVersion {
		return vs[len(vs)-1], nil
	}
	if version < 1 || version > len(vs) {
		return PlanVersion{}, apierrors.NotFound("plan_version", planName)
	}
	return vs[version-1], nil
}

// Save appends a new, strictly-increasing version for planName.
func (s *FileStore) Save(ctx context.Context, planName string, plan utdl.Plan, source Source, description string, tags []string, llmProvider, llmModel string) (PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, err := s.readLocked(planName)
	if err != nil {
		return PlanVersion{}, err
	}

	pv := PlanVersion{
		PlanName:    planName,
		Version:     len(vs) + 1,
		CreatedAt:   time.Now().UTC(),
		Source:      source,
		LLMProvider: llmProvider,
		LLMModel:    llmModel,
		Description: description,
		Tags:        tags,
		Plan:        plan,
	}
	vs = append(vs, pv)
	if err := s.writeLocked(planName, vs); err != nil {
		return PlanVersion{}, err
	}
	return pv, nil
}

// Diff computes the structural diff between version a and version b (0 for
// "current") of planName.
func (s *FileStore) Diff(ctx context.Context, planName string, a int, b int) (PlanDiff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, err := s.readLocked(planName)
	if err != nil {
		return PlanDiff{}, err
	}
	va, err := selectVersion(planName, vs, a)
	if err != nil {
		return PlanDiff{}, err
	}
	vb, err := selectVersion(planName, vs, b)
	if err != nil {
		return PlanDiff{}, err
	}
	return diffVersions(va, vb), nil
}

// Rollback writes a new version carrying version's plan payload.
func (s *FileStore) Rollback(ctx context.Context, planName string, version int, description string) (PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, err := s.readLocked(planName)
	if err != nil {
		return PlanVersion{}, err
	}
	src, err := selectVersion(planName, vs, version)
	if err != nil {
		return PlanVersion{}, err
	}

	if description == "" {
		description = fmt.Sprintf("rollback to version %d", src.Version)
	}
	pv := PlanVersion{
		PlanName:    planName,
		Version:     len(vs) + 1,
		CreatedAt:   time.Now().UTC(),
		Source:      SourceManual,
		Description: description,
		Tags:        src.Tags,
		Plan:        src.Plan,
	}
	vs = append(vs, pv)
	if err := s.writeLocked(planName, vs); err != nil {
		return PlanVersion{}, err
	}
	return pv, nil
}
