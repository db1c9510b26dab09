// Package history stores and queries execution records produced by the
// orchestrator, across a pluggable set of backends (embedded Postgres,
// filesystem object store, or legacy file tree).
package history

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the terminal outcome of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// Record is one stored execution, independent of backend.
type Record struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	PlanFile         string            `json:"plan_file"`
	PlanHash         string            `json:"plan_hash,omitempty"`
	PlanName         string            `json:"plan_name,omitempty"`
	Status           Status            `json:"status"`
	DurationMs       float64           `json:"duration_ms"`
	TotalSteps       int               `json:"total_steps"`
	PassedSteps      int               `json:"passed_steps"`
	FailedSteps      int               `json:"failed_steps"`
	SkippedSteps     int               `json:"skipped_steps"`
	RunnerVersion    string            `json:"runner_version,omitempty"`
	RunnerReport     json.RawMessage   `json:"runner_report,omitempty"`
	ReportCompressed bool              `json:"-"`
	Tags             []string               `json:"tags,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Stats summarizes one backend's contents.
type Stats struct {
	Backend      string     `json:"backend"`
	Total        int        `json:"total"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	ErrorCount   int        `json:"error_count"`
	Oldest       *time.Time `json:"oldest,omitempty"`
	Newest       *time.Time `json:"newest,omitempty"`
	SizeBytes    *int64     `json:"size_bytes,omitempty"`
}

// ListFilter narrows a List call. Zero-valued fields are not applied, and
// every non-zero field is ANDed together.
type ListFilter struct {
	Limit     int
	Offset    int
	Status    *Status
	StartDate *time.Time
	EndDate   *time.Time
	Tags      []string
}

// Backend is the storage contract every concrete history implementation
// satisfies. Save is idempotent: saving the same record ID twice upserts
// rather than duplicating.
type Backend interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (Stats, error)
	Clear(ctx context.Context) (int, error)
	Close() error
}

// matchesFilter applies the AND-composed ListFilter predicates shared by
// the in-memory-index-backed backends (objectstore, filetree).
func matchesFilter(r Record, f ListFilter) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && r.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && r.Timestamp.After(*f.EndDate) {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, have := range r.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
