package state

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql" // registers the "mysql" driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/config"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// DefaultTable is the table checkpoints are stored in
const DefaultTable = "ldes_state_pages"

// Dialect selects placeholder syntax
type Dialect int

const (
	// DialectPostgres uses $n placeholders
	DialectPostgres Dialect = iota
	// DialectMySQL uses ? placeholders
	DialectMySQL
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLStore keeps a checkpoint in a relational table, one row per processed
// page:
//
//	stream_id | seq | page
//
// seq orders the pages of a stream; the row with the highest seq is the
// latest page.
type SQLStore struct {
	db       *sql.DB
	ownsDB   bool
	dialect  Dialect
	table    string
	identity string
	logger   *zap.Logger
	queries  sqlQueries
}

type sqlQueries struct {
	create string
	latest string
	exists string
	maxSeq string
	insert string
	list   string
	reset  string
}

func newSQLFromConfig(cfg config.StateConfig, identity string, l *zap.Logger) (Store, error) {
	dsn := cfg.Settings["dsn"]
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "sql state store requires a dsn setting")
	}

	driver := cfg.Settings["driver"]
	var dialect Dialect
	switch driver {
	case "", "pgx", "postgres", "postgresql":
		driver, dialect = "pgx", DialectPostgres
	case "mysql":
		dialect = DialectMySQL
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported sql driver").WithDetail("driver", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to open database")
	}

	s, err := NewSQLStore(db, dialect, cfg.Settings["table"], identity, l)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// NewSQLStore creates a store on an open database. The caller keeps
// ownership of db.
func NewSQLStore(db *sql.DB, dialect Dialect, table, identity string, l *zap.Logger) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid table name").WithDetail("table", table)
	}

	return &SQLStore{
		db:       db,
		dialect:  dialect,
		table:    table,
		identity: identity,
		logger:   logger.OrDefault(l).With(zap.String("component", "sql_state"), zap.String("identity", identity)),
		queries:  buildQueries(dialect, table),
	}, nil
}

func buildQueries(d Dialect, table string) sqlQueries {
	ph := func(n int) string {
		if d == DialectMySQL {
			return "?"
		}
		return fmt.Sprintf("$%d", n)
	}

	return sqlQueries{
		create: "CREATE TABLE IF NOT EXISTS " + table + " (" +
			"stream_id VARCHAR(512) NOT NULL, " +
			"seq INTEGER NOT NULL, " +
			"page VARCHAR(2048) NOT NULL, " +
			"PRIMARY KEY (stream_id, seq))",
		latest: "SELECT page FROM " + table + " WHERE stream_id = " + ph(1) + " ORDER BY seq DESC LIMIT 1",
		exists: "SELECT COUNT(*) FROM " + table + " WHERE stream_id = " + ph(1) + " AND page = " + ph(2),
		maxSeq: "SELECT COALESCE(MAX(seq), 0) FROM " + table + " WHERE stream_id = " + ph(1),
		insert: "INSERT INTO " + table + " (stream_id, seq, page) VALUES (" + strings.Join([]string{ph(1), ph(2), ph(3)}, ", ") + ")",
		list:   "SELECT page FROM " + table + " WHERE stream_id = " + ph(1) + " ORDER BY seq ASC",
		reset:  "DELETE FROM " + table + " WHERE stream_id = " + ph(1),
	}
}

// Provision implements Store
func (s *SQLStore) Provision(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to state database")
	}
	if _, err := s.db.ExecContext(ctx, s.queries.create); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to create state table").WithDetail("table", s.table)
	}
	s.logger.Debug("sql state store provisioned", zap.String("table", s.table))
	return nil
}

// LatestPage implements Store
func (s *SQLStore) LatestPage(ctx context.Context) (string, error) {
	var page string
	err := s.db.QueryRowContext(ctx, s.queries.latest, s.identity).Scan(&page)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeState, "failed to read latest page")
	}
	return page, nil
}

// SetLatestPage implements Store
func (s *SQLStore) SetLatestPage(ctx context.Context, page string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.QueryRowContext(ctx, s.queries.exists, s.identity, page).Scan(&count); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to check page")
	}
	if count > 0 {
		if err = tx.Commit(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeState, "failed to commit")
		}
		return nil
	}

	var seq int64
	if err = tx.QueryRowContext(ctx, s.queries.maxSeq, s.identity).Scan(&seq); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to read sequence")
	}
	if _, err = tx.ExecContext(ctx, s.queries.insert, s.identity, seq+1, page); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to insert page")
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to commit")
	}
	return nil
}

// ProcessedPages implements Store
func (s *SQLStore) ProcessedPages(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.list, s.identity)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to list pages")
	}
	defer rows.Close()

	var pages []string
	for rows.Next() {
		var page string
		if err := rows.Scan(&page); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to scan page")
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to list pages")
	}
	return pages, nil
}

// Reset implements Store
func (s *SQLStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.queries.reset, s.identity); err != nil {
		return errors.Wrap(err, errors.ErrorTypeState, "failed to reset state")
	}
	return nil
}

// Close implements Store
func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
