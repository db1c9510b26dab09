// Package versionstore tracks named plans as a sequence of immutable,
// monotonically-numbered versions, with structural diffing and
// rollback-as-new-version semantics.
package versionstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// Source identifies how a PlanVersion's payload was produced.
type Source string

const (
	SourceLLM    Source = "llm"
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// PlanVersion is one immutable, numbered snapshot of a named plan.
type PlanVersion struct {
	PlanName    string    `json:"plan_name"`
	Version     int       `json:"version_number"`
	CreatedAt   time.Time `json:"created_at"`
	Source      Source    `json:"source"`
	LLMProvider string    `json:"llm_provider,omitempty"`
	LLMModel    string    `json:"llm_model,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Plan        utdl.Plan `json:"plan"`
}

// PlanDiff is the structural difference between two versions of a plan,
// computed by indexing steps on id.
type PlanDiff struct {
	PlanName      string                 `json:"plan_name"`
	From          int                    `json:"from"`
	To            int                    `json:"to"`
	StepsAdded    []utdl.Step            `json:"steps_added,omitempty"`
	StepsRemoved  []utdl.Step            `json:"steps_removed,omitempty"`
	StepsModified []StepChange           `json:"steps_modified,omitempty"`
	ConfigChanges map[string]ValueChange `json:"config_changes,omitempty"`
	MetaChanges   map[string]ValueChange `json:"meta_changes,omitempty"`
	HasChanges    bool                   `json:"has_changes"`
	Summary       string                 `json:"summary"`
}

// StepChange pairs a step's before/after payload for a modified step id.
type StepChange struct {
	ID     string    `json:"id"`
	Before utdl.Step `json:"before"`
	After  utdl.Step `json:"after"`
}

// ValueChange pairs a before/after value for one changed field.
type ValueChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

// Store is the version-store contract; implementations may be in-memory,
// file-backed, or database-backed.
type Store interface {
	ListPlans(ctx context.Context) ([]string, error)
	ListVersions(ctx context.Context, planName string) ([]PlanVersion, error)
	GetVersion(ctx context.Context, planName string, version int) (PlanVersion, error)
	Save(ctx context.Context, planName string, plan utdl.Plan, source Source, description string, tags []string, llmProvider, llmModel string) (PlanVersion, error)
	Diff(ctx context.Context, planName string, a int, b int) (PlanDiff, error)
	Rollback(ctx context.Context, planName string, version int, description string) (PlanVersion, error)
}

// version 0 in GetVersion/Diff means "current (highest) version".
const currentVersion = 0

// MemoryStore is an in-process Store guarded by one store-wide mutex, which
// serializes the monotonic version-counter advance of every plan name; there
// is no separate lock per plan name. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]PlanVersion // plan name -> versions, index 0 is version 1
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory version store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{versions: make(map[string][]PlanVersion)}
}

// ListPlans returns every known plan name, sorted.
func (s *MemoryStore) ListPlans(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.versions))
	for name := range s.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ListVersions returns every version of planName, oldest first.
func (s *MemoryStore) ListVersions(ctx context.Context, planName string) ([]PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.versions[planName]
	if !ok {
		return nil, apierrors.NotFound("plan", planName)
	}
	out := make([]PlanVersion, len(vs))
	copy(out, vs)
	return out, nil
}

// GetVersion returns planName's version (1-based); version == 0 means the
// current (highest) version.
func (s *MemoryStore) GetVersion(ctx context.Context, planName string, version int) (PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getVersionLocked(planName, version)
}

func (s *MemoryStore) getVersionLocked(planName string, version int) (PlanVersion, error) {
	vs, ok := s.versions[planName]
	if !ok || len(vs) == 0 {
		return PlanVersion{}, apierrors.NotFound("plan", planName)
	}
	if version == currentVersion {
		return vs[len(vs)-1], nil
	}
	if version < 1 || version > len(vs) {
		return PlanVersion{}, apierrors.NotFound("plan_version", fmt.Sprintf("%s@%d", planName, version))
	}
	return vs[version-1], nil
}

// Save appends a new, strictly-increasing version for planName. It never
// overwrites an existing version.
func (s *MemoryStore) Save(ctx context.Context, planName string, plan utdl.Plan, source Source, description string, tags []string, llmProvider, llmModel string) (PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[planName]
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
	s.versions[planName] = append(vs, pv)
	return pv, nil
}

// Diff computes the structural diff between version a and version b (0 for
// "current") of planName.
func (s *MemoryStore) Diff(ctx context.Context, planName string, a int, b int) (PlanDiff, error) {
	s.mu.Lock()
	va, err := s.getVersionLocked(planName, a)
	if err != nil {
		s.mu.Unlock()
		return PlanDiff{}, err
	}
	vb, err := s.getVersionLocked(planName, b)
	s.mu.Unlock()
	if err != nil {
		return PlanDiff{}, err
	}
	return diffVersions(va, vb), nil
}

// Rollback reads version, and writes a new version with the same plan
// payload, source "manual", and an annotated description. It never
// modifies prior versions.
func (s *MemoryStore) Rollback(ctx context.Context, planName string, version int, description string) (PlanVersion, error) {
	s.mu.Lock()
	src, err := s.getVersionLocked(planName, version)
	if err != nil {
		s.mu.Unlock()
		return PlanVersion{}, err
	}

	if description == "" {
		description = fmt.Sprintf("rollback to version %d", src.Version)
	}
	vs := s.versions[planName]
	pv := PlanVersion{
		PlanName:    planName,
		Version:     len(vs) + 1,
		CreatedAt:   time.Now().UTC(),
		Source:      SourceManual,
		Description: description,
		Tags:        src.Tags,
		Plan:        src.Plan,
	}
	s.versions[planName] = append(vs, pv)
	s.mu.Unlock()
	return pv, nil
}

// diffVersions indexes both versions' steps by id and compares plan,
// config, and meta fields per spec.md §4.I.
func diffVersions(a, b PlanVersion) PlanDiff {
	diff := PlanDiff{PlanName: a.PlanName, From: a.Version, To: b.Version}

	byID := func(steps []utdl.Step) map[string]utdl.Step {
		m := make(map[string]utdl.Step, len(steps))
		for _, st := range steps {
			m[st.ID] = st
		}
		return m
	}
	stepsA, stepsB := byID(a.Plan.Steps), byID(b.Plan.Steps)

	var addedIDs, removedIDs, modifiedIDs []string
	for id := range stepsB {
		if _, ok := stepsA[id]; !ok {
			addedIDs = append(addedIDs, id)
		}
	}
	for id := range stepsA {
		if _, ok := stepsB[id]; !ok {
			removedIDs = append(removedIDs, id)
		}
	}
	for id, sa := range stepsA {
		if sb, ok := stepsB[id]; ok && !reflect.DeepEqual(sa, sb) {
			modifiedIDs = append(modifiedIDs, id)
		}
	}
	sort.Strings(addedIDs)
	sort.Strings(removedIDs)
	sort.Strings(modifiedIDs)

	for _, id := range addedIDs {
		diff.StepsAdded = append(diff.StepsAdded, stepsB[id])
	}
	for _, id := range removedIDs {
		diff.StepsRemoved = append(diff.StepsRemoved, stepsA[id])
	}
	for _, id := range modifiedIDs {
		diff.StepsModified = append(diff.StepsModified, StepChange{ID: id, Before: stepsA[id], After: stepsB[id]})
	}

	diff.ConfigChanges = diffConfig(a.Plan.Config, b.Plan.Config)
	diff.MetaChanges = diffMeta(a.Plan.Meta, b.Plan.Meta)

	diff.HasChanges = len(diff.StepsAdded) > 0 || len(diff.StepsRemoved) > 0 ||
		len(diff.StepsModified) > 0 || len(diff.ConfigChanges) > 0 || len(diff.MetaChanges) > 0
	diff.Summary = fmt.Sprintf("+%d steps, -%d steps, ~%d steps modified, %d config change(s), %d meta change(s)",
		len(diff.StepsAdded), len(diff.StepsRemoved), len(diff.StepsModified), len(diff.ConfigChanges), len(diff.MetaChanges))

	return diff
}

func diffConfig(a, b utdl.Config) map[string]ValueChange {
	changes := map[string]ValueChange{}
	if a.BaseURL != b.BaseURL {
		changes["base_url"] = ValueChange{Before: a.BaseURL, After: b.BaseURL}
	}
	if a.TimeoutMs != b.TimeoutMs {
		changes["timeout_ms"] = ValueChange{Before: a.TimeoutMs, After: b.TimeoutMs}
	}
	if !reflect.DeepEqual(a.GlobalHeaders, b.GlobalHeaders) {
		changes["global_headers"] = ValueChange{Before: a.GlobalHeaders, After: b.GlobalHeaders}
	}
	if !reflect.DeepEqual(a.Variables, b.Variables) {
		changes["variables"] = ValueChange{Before: a.Variables, After: b.Variables}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

func diffMeta(a, b utdl.Meta) map[string]ValueChange {
	changes := map[string]ValueChange{}
	if a.Name != b.Name {
		changes["name"] = ValueChange{Before: a.Name, After: b.Name}
	}
	if a.Description != b.Description {
		changes["description"] = ValueChange{Before: a.Description, After: b.Description}
	}
	if !reflect.DeepEqual(a.Tags, b.Tags) {
		changes["tags"] = ValueChange{Before: a.Tags, After: b.Tags}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
