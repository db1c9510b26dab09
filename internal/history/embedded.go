package history

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aqa-systems/brain/internal/platform/migrations"
	"github.com/aqa-systems/brain/pkg/apierrors"
)

// EmbeddedBackend stores execution records in the shared Postgres database,
// reusing the same connection and migration set as the plan version store.
type EmbeddedBackend struct {
	db       *sqlx.DB
	compress bool
}

var _ Backend = (*EmbeddedBackend)(nil)

// NewEmbeddedBackend wraps db, applying the executions schema and
// optionally gzip-compressing stored runner reports.
func NewEmbeddedBackend(db *sql.DB, compress bool) (*EmbeddedBackend, error) {
	if err := migrations.Apply(db); err != nil {
		return nil, apierrors.Internal("failed to apply history migrations", err)
	}
	return &EmbeddedBackend{db: sqlx.NewDb(db, "postgres"), compress: compress}, nil
}

type executionRow struct {
	ID               string         `db:"id"`
	CreatedAt        time.Time      `db:"created_at"`
	PlanFile         string         `db:"plan_file"`
	PlanName         sql.NullString `db:"plan_name"`
	PlanHash         sql.NullString `db:"plan_hash"`
	Status           string         `db:"status"`
	DurationMs       float64        `db:"duration_ms"`
	StepsTotal       int            `db:"steps_total"`
	StepsPassed      int            `db:"steps_passed"`
	StepsFailed      int            `db:"steps_failed"`
	StepsSkipped     int            `db:"steps_skipped"`
	RunnerVersion    sql.NullString `db:"runner_version"`
	Tags             pq.StringArray `db:"tags"`
	RunnerReport     []byte         `db:"runner_report"`
	ReportCompressed bool           `db:"report_compressed"`
	Metadata         []byte         `db:"metadata"`
}

func (r executionRow) toRecord(includeReport bool) (Record, error) {
	rec := Record{
		ID:            r.ID,
		Timestamp:     r.CreatedAt.UTC(),
		PlanFile:      r.PlanFile,
		PlanName:      r.PlanName.String,
		PlanHash:      r.PlanHash.String,
		Status:        Status(r.Status),
		DurationMs:    r.DurationMs,
		TotalSteps:    r.StepsTotal,
		PassedSteps:   r.StepsPassed,
		FailedSteps:   r.StepsFailed,
		SkippedSteps:  r.StepsSkipped,
		RunnerVersion: r.RunnerVersion.String,
		Tags:          []string(r.Tags),
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &rec.Metadata); err != nil {
			return Record{}, apierrors.Internal("failed to decode execution metadata", err)
		}
	}
	if includeReport && len(r.RunnerReport) > 0 {
		report, err := decompressReport(r.RunnerReport, r.ReportCompressed)
		if err != nil {
			return Record{}, err
		}
		rec.RunnerReport = report
		rec.ReportCompressed = r.ReportCompressed
	}
	return rec, nil
}

func compressReport(report json.RawMessage, compress bool) ([]byte, bool, error) {
	if len(report) == 0 {
		return nil, false, nil
	}
	if !compress {
		return []byte(report), false, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(report); err != nil {
		return nil, false, apierrors.Internal("failed to compress runner report", err)
	}
	if err := w.Close(); err != nil {
		return nil, false, apierrors.Internal("failed to compress runner report", err)
	}
	return buf.Bytes(), true, nil
}

func decompressReport(blob []byte, compressed bool) (json.RawMessage, error) {
	if !compressed {
		return json.RawMessage(blob), nil
	}
	r, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, apierrors.Internal("failed to decompress runner report", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, apierrors.Internal("failed to decompress runner report", err)
	}
	return json.RawMessage(out), nil
}

// Save upserts record by ID.
func (b *EmbeddedBackend) Save(ctx context.Context, record Record) error {
	reportBlob, compressed, err := compressReport(record.RunnerReport, b.compress)
	if err != nil {
		return err
	}
	metaBlob, err := json.Marshal(record.Metadata)
	if err != nil {
		return apierrors.Internal("failed to encode execution metadata", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, created_at, plan_file, plan_name, plan_hash, status, duration_ms,
			steps_total, steps_passed, steps_failed, steps_skipped, runner_version,
			tags, runner_report, report_compressed, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			plan_file = EXCLUDED.plan_file,
			plan_name = EXCLUDED.plan_name,
			plan_hash = EXCLUDED.plan_hash,
			status = EXCLUDED.status,
			duration_ms = EXCLUDED.duration_ms,
			steps_total = EXCLUDED.steps_total,
			steps_passed = EXCLUDED.steps_passed,
			steps_failed = EXCLUDED.steps_failed,
			steps_skipped = EXCLUDED.steps_skipped,
			runner_version = EXCLUDED.runner_version,
			tags = EXCLUDED.tags,
			runner_report = EXCLUDED.runner_report,
			report_compressed = EXCLUDED.report_compressed,
			metadata = EXCLUDED.metadata
	`, record.ID, record.Timestamp.UTC(), record.PlanFile, nullIfEmpty(record.PlanName), nullIfEmpty(record.PlanHash),
		string(record.Status), record.DurationMs, record.TotalSteps, record.PassedSteps, record.FailedSteps, record.SkippedSteps,
		nullIfEmpty(record.RunnerVersion), pq.Array(record.Tags), reportBlob, compressed, metaBlob)
	if err != nil {
		return apierrors.Internal("failed to save execution record", err)
	}
	return nil
}

// Get returns one record, including its runner report.
func (b *EmbeddedBackend) Get(ctx context.Context, id string) (Record, error) {
	var row executionRow
	err := b.db.GetContext(ctx, &row, `SELECT * FROM executions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return Record{}, apierrors.NotFound("execution", id)
	}
	if err != nil {
		return Record{}, apierrors.Internal("failed to get execution record", err)
	}
	return row.toRecord(true)
}

// List returns records most-recent-first, with AND-composed filters.
func (b *EmbeddedBackend) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	query := `SELECT * FROM executions WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if filter.StartDate != nil {
		query += " AND created_at >= " + arg(filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += " AND created_at <= " + arg(filter.EndDate.UTC())
	}
	for _, tag := range filter.Tags {
		query += " AND tags @> " + arg(pq.Array([]string{tag}))
	}

	query += " ORDER BY created_at DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT " + arg(limit)
	query += " OFFSET " + arg(filter.Offset)

	var rows []executionRow
	if err := b.db.SelectContext(ctx, &rows, b.db.Rebind(query), args...); err != nil {
		return nil, apierrors.Internal("failed to list execution records", err)
	}

	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes one record, reporting whether it existed.
func (b *EmbeddedBackend) Delete(ctx context.Context, id string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM executions WHERE id = $1`, id)
	if err != nil {
		return false, apierrors.Internal("failed to delete execution record", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Stats summarizes the table's contents.
func (b *EmbeddedBackend) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "embedded"}
	if err := b.db.GetContext(ctx, &stats.Total, `SELECT COUNT(*) FROM executions`); err != nil {
		return Stats{}, apierrors.Internal("failed to compute execution stats", err)
	}

	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := b.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS count FROM executions GROUP BY status`); err != nil {
		return Stats{}, apierrors.Internal("failed to compute execution stats", err)
	}
	for _, c := range counts {
		switch Status(c.Status) {
		case StatusSuccess:
			stats.SuccessCount = c.Count
		case StatusFailure:
			stats.FailureCount = c.Count
		case StatusError:
			stats.ErrorCount = c.Count
		}
	}

	var extremes struct {
		Oldest sql.NullTime `db:"oldest"`
		Newest sql.NullTime `db:"newest"`
	}
	if err := b.db.GetContext(ctx, &extremes, `SELECT MIN(created_at) AS oldest, MAX(created_at) AS newest FROM executions`); err != nil {
		return Stats{}, apierrors.Internal("failed to compute execution stats", err)
	}
	if extremes.Oldest.Valid {
		t := extremes.Oldest.Time.UTC()
		stats.Oldest = &t
	}
	if extremes.Newest.Valid {
		t := extremes.Newest.Time.UTC()
		stats.Newest = &t
	}

	var sizeBytes sql.NullInt64
	if err := b.db.GetContext(ctx, &sizeBytes, `SELECT pg_total_relation_size('executions')`); err == nil && sizeBytes.Valid {
		v := sizeBytes.Int64
		stats.SizeBytes = &v
	}

	return stats, nil
}

// Clear removes every record, returning how many were removed.
func (b *EmbeddedBackend) Clear(ctx context.Context) (int, error) {
	var total int
	if err := b.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM executions`); err != nil {
		return 0, apierrors.Internal("failed to clear execution records", err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM executions`); err != nil {
		return 0, apierrors.Internal("failed to clear execution records", err)
	}
	return total, nil
}

// Close releases the underlying connection pool.
func (b *EmbeddedBackend) Close() error {
	return b.db.Close()
}

// Search finds records whose plan_file or plan_name contains query.
func (b *EmbeddedBackend) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + strings.ReplaceAll(query, "%", "\\%") + "%"
	var rows []executionRow
	err := b.db.SelectContext(ctx, &rows, `
		SELECT * FROM executions WHERE plan_file ILIKE $1 OR plan_name ILIKE $1
		ORDER BY created_at DESC LIMIT $2
	`, like, limit)
	if err != nil {
		return nil, apierrors.Internal("failed to search execution records", err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetByPlanHash returns every execution of a given plan, newest first.
func (b *EmbeddedBackend) GetByPlanHash(ctx context.Context, planHash string) ([]Record, error) {
	var rows []executionRow
	err := b.db.SelectContext(ctx, &rows, `
		SELECT * FROM executions WHERE plan_hash = $1 ORDER BY created_at DESC
	`, planHash)
	if err != nil {
		return nil, apierrors.Internal("failed to get executions by plan hash", err)
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toRecord(false)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetLatest returns the single most recent execution, if any.
func (b *EmbeddedBackend) GetLatest(ctx context.Context) (*Record, error) {
	var row executionRow
	err := b.db.GetContext(ctx, &row, `SELECT * FROM executions ORDER BY created_at DESC LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.Internal("failed to get latest execution", err)
	}
	rec, err := row.toRecord(true)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Vacuum reclaims dead tuple space in the underlying table.
func (b *EmbeddedBackend) Vacuum(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `VACUUM executions`); err != nil {
		return apierrors.Internal("failed to vacuum execution table", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
