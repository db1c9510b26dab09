package history

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedEmbeddedBackend(t *testing.T) (*EmbeddedBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &EmbeddedBackend{db: sqlx.NewDb(db, "postgres"), compress: true}, mock
}

func TestEmbeddedBackend_SaveUpsertsOnConflict(t *testing.T) {
	b, mock := newMockedEmbeddedBackend(t)
	mock.ExpectExec("INSERT INTO executions").WillReturnResult(sqlmock.NewResult(0, 1))

	rec := sampleRecord("exec-1", time.Now().UTC(), StatusSuccess)
	require.NoError(t, b.Save(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedBackend_GetReturnsNotFoundOnNoRows(t *testing.T) {
	b, mock := newMockedEmbeddedBackend(t)
	mock.ExpectQuery("SELECT \\* FROM executions WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := b.Get(context.Background(), "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedBackend_DeleteReportsRowsAffected(t *testing.T) {
	b, mock := newMockedEmbeddedBackend(t)
	mock.ExpectExec("DELETE FROM executions WHERE id = \\$1").
		WithArgs("exec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := b.Delete(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompressReport_RoundTrips(t *testing.T) {
	original := []byte(`{"summary":{"total":3}}`)
	blob, compressed, err := compressReport(original, true)
	require.NoError(t, err)
	assert.True(t, compressed)

	decoded, err := decompressReport(blob, compressed)
	require.NoError(t, err)
	assert.JSONEq(t, string(original), string(decoded))
}

func TestCompressReport_PassthroughWhenDisabled(t *testing.T) {
	original := []byte(`{"summary":{"total":1}}`)
	blob, compressed, err := compressReport(original, false)
	require.NoError(t, err)
	assert.False(t, compressed)
	assert.Equal(t, original, blob)
}
