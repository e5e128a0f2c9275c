package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing primary key.
	ErrDuplicate = errors.New("duplicate key")
)

// DB represents a wrapper around the SQL database connection.
// A DB returned to an InTx callback runs every statement inside that transaction.
type DB struct {
	conn *sqlx.DB
	q    sqlx.ExtContext
	tx   *sqlx.Tx
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; this also keeps ":memory:" databases on one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return New(conn), nil
}

// New wraps an already open connection without touching the schema.
func New(conn *sqlx.DB) *DB {
	return &DB{conn: conn, q: conn}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InTx runs fn inside a transaction, committing if it returns nil.
// Calls made on a DB that is already transactional join the outer transaction.
func (db *DB) InTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.tx != nil {
		return fn(db)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&DB{conn: db.conn, q: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to roll back transaction: %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isConstraint reports whether err is a sqlite constraint violation.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func (db *DB) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, db.q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// in expands slice arguments of an IN (?) query.
func (db *DB) in(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return db.q.Rebind(q), a, nil
}

type namedPreparer interface {
	PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
}

func (db *DB) prepareNamed(ctx context.Context, query string) (*sqlx.NamedStmt, error) {
	p, ok := db.q.(namedPreparer)
	if !ok {
		return nil, fmt.Errorf("executor %T cannot prepare statements", db.q)
	}
	return p.PrepareNamedContext(ctx, query)
}
