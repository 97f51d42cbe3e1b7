package postgres

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	var up, down int
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			up++
		case strings.HasSuffix(n, ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Errorf("migrations: %d up, %d down (%v)", up, down, names)
	}

	b, err := fs.ReadFile(migrationsFS, "migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS sessions", "CREATE TABLE IF NOT EXISTS detections", "BYTEA"} {
		if !strings.Contains(string(b), want) {
			t.Errorf("init migration missing %q", want)
		}
	}
}

func TestOpenSessionUsesNumberedPlaceholders(t *testing.T) {
	db, mock := newMockDB(t)
	s := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT session_id, active, opened_at, closed_at\s+FROM sessions WHERE active = 1`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "active", "opened_at", "closed_at"}).
			AddRow("20261017090000", 1, int64(1000), nil))
	mock.ExpectExec(`UPDATE sessions SET active = \$1, opened_at = \$2, closed_at = \$3\s+WHERE session_id = \$4`).
		WithArgs(0, int64(1000), int64(2000), "20261017090000").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO sessions \(session_id, active, opened_at, closed_at\)\s+VALUES \(\$1, \$2, \$3, \$4\)`).
		WithArgs("20261017093000", 1, int64(2000), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		active, err := tx.ActiveSessions(ctx)
		if err != nil {
			return err
		}
		for _, a := range active {
			closed := int64(2000)
			a.Active = false
			a.ClosedAt = &closed
			if err := tx.UpdateSession(ctx, a); err != nil {
				return err
			}
		}
		return tx.InsertSession(ctx, model.Session{ID: "20261017093000", Active: true, OpenedAt: 2000})
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestReadOnlyTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	s := FromDB(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM detections WHERE session_id = \$1`).
		WithArgs("20261017093000").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	var n int32
	err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
		var err error
		n, err = tx.CountDetections(context.Background(), "20261017093000")
		return err
	})
	if err != nil {
		t.Fatalf("RunReadOnly: %v", err)
	}
	if n != 2 {
		t.Errorf("CountDetections = %d, want 2", n)
	}
}
