// Package storage provides read-only access to the tour catalog database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Common errors
var (
	ErrWriteRejected     = errors.New("only read-only SELECT statements are allowed")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Querier runs a read-only statement and returns its rows as column maps.
// Every retrieval component depends on this capability only.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
}

// Dialect selects SQL spelling differences between drivers.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// PatternOperator returns the case-insensitive substring match operator.
func (d Dialect) PatternOperator() string {
	if d == DialectSQLite {
		// sqlite LIKE is already case-insensitive for ASCII
		return "LIKE"
	}
	return "ILIKE"
}

// Options configures the connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// ReadOnlyStore enforces the read-only policy on top of a pooled *sql.DB.
type ReadOnlyStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ Querier = (*ReadOnlyStore)(nil)

// NewReadOnlyStore wraps an existing pool.
func NewReadOnlyStore(db *sql.DB, dialect Dialect) *ReadOnlyStore {
	return &ReadOnlyStore{db: db, dialect: dialect}
}

// Open creates the pool for the configured driver and verifies connectivity.
func Open(ctx context.Context, opts Options) (*ReadOnlyStore, error) {
	var driverName string
	var dialect Dialect
	switch opts.Driver {
	case "postgres":
		driverName, dialect = "postgres", DialectPostgres
	case "sqlite":
		driverName, dialect = "sqlite3", DialectSQLite
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}

	db, err := sql.Open(driverName, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	return NewReadOnlyStore(db, dialect), nil
}

// Query checks the statement against the read-only policy, checks out a
// dedicated connection, runs the statement and releases the connection on
// every path.
func (s *ReadOnlyStore) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	if err := CheckReadOnly(query); err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Dialect returns the SQL dialect of the underlying driver.
func (s *ReadOnlyStore) Dialect() Dialect {
	return s.dialect
}

// DB exposes the pool for fixtures and health checks.
func (s *ReadOnlyStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *ReadOnlyStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *ReadOnlyStore) Close() error {
	return s.db.Close()
}

// CheckReadOnly rejects anything but a single SELECT statement.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))

	if len(q) < len("select") || !strings.EqualFold(q[:len("select")], "select") {
		return ErrWriteRejected
	}
	if len(q) > len("select") {
		next := q[len("select")]
		if next != ' ' && next != '\n' && next != '\t' && next != '\r' && next != '(' && next != '*' {
			return ErrWriteRejected
		}
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("%w: multiple statements", ErrWriteRejected)
	}
	return nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
