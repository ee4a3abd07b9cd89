package state

import (
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/testutil"
)

const identity = "museum_https://example.org/objects"

func newMockStore(t *testing.T, dialect Dialect) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s, err := NewSQLStore(db, dialect, "", identity, testutil.TestLogger(t))
	require.NoError(t, err)
	return s, mock
}

func TestSQLStore_Provision(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ldes_state_pages")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Provision(testutil.TestContext(t)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_LatestPage(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	query := regexp.QuoteMeta("SELECT page FROM ldes_state_pages WHERE stream_id = $1 ORDER BY seq DESC LIMIT 1")

	mock.ExpectQuery(query).WithArgs(identity).WillReturnRows(sqlmock.NewRows([]string{"page"}))
	latest, err := s.LatestPage(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Empty(t, latest)

	mock.ExpectQuery(query).WithArgs(identity).WillReturnRows(sqlmock.NewRows([]string{"page"}).AddRow("p2"))
	latest, err = s.LatestPage(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, "p2", latest)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SetLatestPage(t *testing.T) {
	s, mock := newMockStore(t, DialectPostgres)
	exists := regexp.QuoteMeta("SELECT COUNT(*) FROM ldes_state_pages WHERE stream_id = $1 AND page = $2")

	// new page is appended after the current maximum
	mock.ExpectBegin()
	mock.ExpectQuery(exists).WithArgs(identity, "p3").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(seq), 0) FROM ldes_state_pages WHERE stream_id = $1")).
		WithArgs(identity).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ldes_state_pages (stream_id, seq, page) VALUES ($1, $2, $3)")).
		WithArgs(identity, int64(3), "p3").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SetLatestPage(testutil.TestContext(t), "p3"))

	// marking a known page again writes nothing
	mock.ExpectBegin()
	mock.ExpectQuery(exists).WithArgs(identity, "p3").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	require.NoError(t, s.SetLatestPage(testutil.TestContext(t), "p3"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SetLatestPageRollsBack(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM ldes_state_pages WHERE stream_id = ? AND page = ?")).
		WithArgs(identity, "p1").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.SetLatestPage(testutil.TestContext(t), "p1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ProcessedPagesAndReset(t *testing.T) {
	s, mock := newMockStore(t, DialectMySQL)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT page FROM ldes_state_pages WHERE stream_id = ? ORDER BY seq ASC")).
		WithArgs(identity).
		WillReturnRows(sqlmock.NewRows([]string{"page"}).AddRow("p1").AddRow("p2"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM ldes_state_pages WHERE stream_id = ?")).
		WithArgs(identity).WillReturnResult(sqlmock.NewResult(0, 2))

	pages, err := s.ProcessedPages(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, pages)

	require.NoError(t, s.Reset(testutil.TestContext(t)))
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLStore_InvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(db, DialectPostgres, "pages; DROP TABLE x", identity, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
