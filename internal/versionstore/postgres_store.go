package versionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aqa-systems/brain/internal/platform/migrations"
	"github.com/aqa-systems/brain/internal/utdl"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// PostgresStore is a Store backed by the shared embedded database, sharing
// its connection with the history package's embedded backend.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps db, applying the plan_versions/executions schema
// via golang-migrate before first use.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if err := migrations.Apply(db); err != nil {
		return nil, apierrors.Internal("failed to apply version store migrations", err)
	}
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}, nil
}

type versionRow struct {
	PlanName    string         `db:"plan_name"`
	Version     int            `db:"version_number"`
	CreatedAt   time.Time      `db:"created_at"`
	Source      string         `db:"source"`
	LLMProvider sql.NullString `db:"llm_provider"`
	LLMModel    sql.NullString `db:"llm_model"`
	Description sql.NullString `db:"description"`
	Tags        pq.StringArray `db:"tags"`
	PlanJSON    []byte         `db:"plan"`
}

func (r versionRow) toPlanVersion() (PlanVersion, error) {
	var plan utdl.Plan
	if err := json.Unmarshal(r.PlanJSON, &plan); err != nil {
		return PlanVersion{}, apierrors.Internal("failed to decode stored plan", err)
	}
	return PlanVersion{
		PlanName:    r.PlanName,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		Source:      Source(r.Source),
		LLMProvider: r.LLMProvider.String,
		LLMModel:    r.LLMModel.String,
		Description: r.Description.String,
		Tags:        []string(r.Tags),
		Plan:        plan,
	}, nil
}

// ListPlans returns every distinct plan name, sorted.
func (s *PostgresStore) ListPlans(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names, `SELECT DISTINCT plan_name FROM plan_versions ORDER BY plan_name`)
	if err != nil {
		return nil, apierrors.Internal("failed to list plans", err)
	}
	return names, nil
}

// ListVersions returns every version of planName, oldest first.
func (s *PostgresStore) ListVersions(ctx context.Context, planName string) ([]PlanVersion, error) {
	var rows []versionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT plan_name, version_number, created_at, source, llm_provider, llm_model, description, tags, plan
		FROM plan_versions WHERE plan_name = $1 ORDER BY version_number
	`, planName)
	if err != nil {
		return nil, apierrors.Internal("failed to list plan versions", err)
	}
	if len(rows) == 0 {
		return nil, apierrors.NotFound("plan", planName)
	}

	out := make([]PlanVersion, 0, len(rows))
	for _, r := range rows {
		pv, err := r.toPlanVersion()
		if err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, nil
}

// GetVersion returns planName's version (1-based); version == 0 returns the
// current (highest) version.
func (s *PostgresStore) GetVersion(ctx context.Context, planName string, version int) (PlanVersion, error) {
	var row versionRow
	var err error
	if version == currentVersion {
		err = s.db.GetContext(ctx, &row, `
			SELECT plan_name, version_number, created_at, source, llm_provider, llm_model, description, tags, plan
			FROM plan_versions WHERE plan_name = $1 ORDER BY version_number DESC LIMIT 1
		`, planName)
	} else {
		err = s.db.GetContext(ctx, &row, `
			SELECT plan_name, version_number, created_at, source, llm_provider, llm_model, description, tags, plan
			FROM plan_versions WHERE plan_name = $1 AND version_number = $2
		`, planName, version)
	}
	if err == sql.ErrNoRows {
		return PlanVersion{}, apierrors.NotFound("plan_version", planName)
	}
	if err != nil {
		return PlanVersion{}, apierrors.Internal("failed to get plan version", err)
	}
	return row.toPlanVersion()
}

// Save appends a new, strictly-increasing version for planName inside a
// transaction that also advances (and locks) the counter.
func (s *PostgresStore) Save(ctx context.Context, planName string, plan utdl.Plan, source Source, description string, tags []string, llmProvider, llmModel string) (PlanVersion, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return PlanVersion{}, apierrors.Internal("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	if err := tx.GetContext(ctx, &maxVersion, `
		SELECT MAX(version_number) FROM plan_versions WHERE plan_name = $1 FOR UPDATE
	`, planName); err != nil {
		return PlanVersion{}, apierrors.Internal("failed to lock plan version counter", err)
	}

	nextVersion := int(maxVersion.Int64) + 1
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return PlanVersion{}, apierrors.Internal("failed to encode plan", err)
	}

	pv := PlanVersion{
		PlanName:    planName,
		Version:     nextVersion,
		CreatedAt:   time.Now().UTC(),
		Source:      source,
		LLMProvider: llmProvider,
		LLMModel:    llmModel,
		Description: description,
		Tags:        tags,
		Plan:        plan,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plan_versions (plan_name, version_number, created_at, source, llm_provider, llm_model, description, tags, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, pv.PlanName, pv.Version, pv.CreatedAt, string(pv.Source), nullIfEmpty(llmProvider), nullIfEmpty(llmModel), nullIfEmpty(description), pq.Array(tags), planJSON)
	if err != nil {
		return PlanVersion{}, apierrors.Internal("failed to insert plan version", err)
	}

	if err := tx.Commit(); err != nil {
		return PlanVersion{}, apierrors.Internal("failed to commit plan version", err)
	}
	return pv, nil
}

// Diff computes the structural diff between version a and version b (0 for
// "current") of planName.
func (s *PostgresStore) Diff(ctx context.Context, planName string, a int, b int) (PlanDiff, error) {
	va, err := s.GetVersion(ctx, planName, a)
	if err != nil {
		return PlanDiff{}, err
	}
	vb, err := s.GetVersion(ctx, planName, b)
	if err != nil {
		return PlanDiff{}, err
	}
	return diffVersions(va, vb), nil
}

// Rollback writes a new version carrying version's plan payload.
func (s *PostgresStore) Rollback(ctx context.Context, planName string, version int, description string) (PlanVersion, error) {
	src, err := s.GetVersion(ctx, planName, version)
	if err != nil {
		return PlanVersion{}, err
	}
	if description == "" {
		description = fmt.Sprintf("rollback to version %d", src.Version)
	}
	return s.Save(ctx, planName, src.Plan, SourceManual, description, src.Tags, "", "")
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
