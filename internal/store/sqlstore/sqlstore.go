// Package sqlstore implements store.Store on database/sql. The sqlite and
// postgres packages open and migrate a database, then hand it to New with
// their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/insectcam/internal/store"
)

// Dialect captures the differences between the supported SQL backends.
type Dialect struct {
	Name string
	// Numbered rewrites ? placeholders to $1, $2, ...
	Numbered bool
	// ReadOnlyTx requests read-only transactions from the driver for
	// RunReadOnly. Drivers without support get a plain transaction.
	ReadOnlyTx bool
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true, ReadOnlyTx: true}
)

// Rebind rewrites the ? placeholders in query for d.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// DB implements store.Store against an open *sql.DB.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Compile-time check that DB implements store.Store.
var _ store.Store = (*DB)(nil)

// New wraps db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// SQL exposes the underlying handle for migrations and tests.
func (s *DB) SQL() *sql.DB { return s.db }

// Dialect reports which backend s talks to.
func (s *DB) Dialect() Dialect { return s.dialect }

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// RunInTransaction begins a read-write transaction, calls fn, and commits on
// success or rolls back on error.
func (s *DB) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.TxError("begin transaction", err)
	}

	if err := fn(&txStore{tx: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return store.TxError("commit transaction", err)
	}
	return nil
}

// RunReadOnly is RunInTransaction without writes. The transaction is always
// rolled back, so nothing fn does can persist.
func (s *DB) RunReadOnly(ctx context.Context, fn func(tx store.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect.ReadOnlyTx {
		opts = &sql.TxOptions{ReadOnly: true}
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return store.TxError("begin read transaction", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&txStore{tx: tx, dialect: s.dialect})
}

// txStore implements store.Tx using a *sql.Tx.
type txStore struct {
	tx      *sql.Tx
	dialect Dialect
}

// Compile-time check that txStore implements store.Tx.
var _ store.Tx = (*txStore)(nil)

func (t *txStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *txStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

// RangeForPrefix returns the half-open key range [lo, hi) covering every
// string that starts with prefix. hi is empty when the range is unbounded.
func RangeForPrefix(prefix string) (lo, hi string) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xFF {
			b[i]++
			return prefix, string(b[:i+1])
		}
	}
	return prefix, ""
}
