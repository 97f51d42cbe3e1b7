package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
)

// newMockStore creates a sqlmock-backed store with automatic cleanup and
// expectation checking.
func newMockStore(t *testing.T, d Dialect) (*DB, sqlmock.Sqlmock) {
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
	return New(db, d), mock
}

var sessionRowColumns = []string{"session_id", "active", "opened_at", "closed_at"}

func TestRebind(t *testing.T) {
	for _, tc := range []struct {
		dialect Dialect
		in      string
		want    string
	}{
		{SQLite, "a = ? AND b = ?", "a = ? AND b = ?"},
		{Postgres, "a = ? AND b = ?", "a = $1 AND b = $2"},
		{Postgres, "no params", "no params"},
		{Postgres, "VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", "VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"},
	} {
		if got := tc.dialect.Rebind(tc.in); got != tc.want {
			t.Errorf("%s.Rebind(%q) = %q, want %q", tc.dialect.Name, tc.in, got, tc.want)
		}
	}
}

func TestRangeForPrefix(t *testing.T) {
	for _, tc := range []struct {
		prefix, lo, hi string
	}{
		{"", "", ""},
		{"2026", "2026", "2027"},
		{"20261017093000", "20261017093000", "20261017093001"},
		{"ab\xff", "ab\xff", "ac"},
		{"\xff\xff", "\xff\xff", ""},
	} {
		lo, hi := RangeForPrefix(tc.prefix)
		if lo != tc.lo || hi != tc.hi {
			t.Errorf("RangeForPrefix(%q) = (%q, %q), want (%q, %q)", tc.prefix, lo, hi, tc.lo, tc.hi)
		}
	}
}

func TestRunInTransactionCommits(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	sess := model.Session{ID: "20261017093000", Active: true, OpenedAt: 1000}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("20261017093000", 1, int64(1000), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Tx) error {
		return tx.InsertSession(context.Background(), sess)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Tx) error {
		return tx.InsertSession(context.Background(), model.Session{ID: "dup", Active: true})
	})
	if !errors.Is(err, store.ErrTransaction) {
		t.Fatalf("err = %v, want ErrTransaction", err)
	}
}

func TestRunInTransactionCommitFailure(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := s.RunInTransaction(context.Background(), func(store.Tx) error { return nil })
	if !errors.Is(err, store.ErrTransaction) {
		t.Fatalf("err = %v, want ErrTransaction", err)
	}
}

func TestRunInTransactionBeginFailure(t *testing.T) {
	s, mock := newMockStore(t, SQLite)
	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := s.RunInTransaction(context.Background(), func(store.Tx) error { called = true; return nil })
	if !errors.Is(err, store.ErrTransaction) {
		t.Fatalf("err = %v, want ErrTransaction", err)
	}
	if called {
		t.Error("fn ran without a transaction")
	}
}

func TestRunReadOnlyAlwaysRollsBack(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM sessions ORDER BY session_id").
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("20261017093000", 0, 1000, 2000).
			AddRow("20261017093100", 1, 3000, nil))
	mock.ExpectRollback()

	var got []model.Session
	err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = tx.ListSessions(context.Background())
		return err
	})
	if err != nil {
		t.Fatalf("RunReadOnly: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions, want 2", len(got))
	}
	if got[0].Active || got[0].ClosedAt == nil || *got[0].ClosedAt != 2000 {
		t.Errorf("first session = %+v", got[0])
	}
	if !got[1].Active || got[1].ClosedAt != nil {
		t.Errorf("second session = %+v", got[1])
	}
}

func TestActiveSessionsExactMatch(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE active = 1`).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).AddRow("a", 1, 1, nil))
	mock.ExpectRollback()

	err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
		got, err := tx.ActiveSessions(context.Background())
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].ID != "a" || !got[0].Active {
			t.Errorf("ActiveSessions = %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunReadOnly: %v", err)
	}
}

func TestUpdateSessionNotFound(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	closed := int64(5)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE sessions SET active = \$1, opened_at = \$2, closed_at = \$3\s+WHERE session_id = \$4`).
		WithArgs(0, int64(1), sqlmock.AnyArg(), "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RunInTransaction(context.Background(), func(tx store.Tx) error {
		return tx.UpdateSession(context.Background(), model.Session{ID: "gone", OpenedAt: 1, ClosedAt: &closed})
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM sessions WHERE session_id = \?`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
		_, err := tx.GetSession(context.Background(), "missing")
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCountAndNextDetection(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM detections WHERE session_id = \$1`).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(detection_id\), 0\) \+ 1 FROM detections$`).
		WithoutArgs().
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectRollback()

	err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
		n, err := tx.CountDetections(context.Background(), "s1")
		if err != nil {
			return err
		}
		next, err := tx.NextDetectionID(context.Background())
		if err != nil {
			return err
		}
		if n != 3 || next != 4 {
			t.Errorf("count = %d, next = %d, want 3, 4", n, next)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunReadOnly: %v", err)
	}
}

func TestListDetectionsPrefixRange(t *testing.T) {
	cols := []string{"session_id", "detection_id", "created_at", "updated_at",
		"confidence", "class_id", "width", "height", "image"}

	for _, tc := range []struct {
		name   string
		prefix string
		query  string
		args   []driver.Value
	}{
		{"Full", "20261017093000", `WHERE session_id >= \$1 AND session_id < \$2 ORDER BY session_id, detection_id`,
			[]driver.Value{"20261017093000", "20261017093001"}},
		{"All", "", `FROM detections ORDER BY session_id, detection_id`, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newMockStore(t, Postgres)
			mock.ExpectBegin()
			q := mock.ExpectQuery(tc.query)
			if tc.args != nil {
				q = q.WithArgs(tc.args...)
			}
			q.WillReturnRows(sqlmock.NewRows(cols).
				AddRow("20261017093000", 1, 10, 10, 0.5, -1, 320, 240, []byte{1}).
				AddRow("20261017093000", 2, 20, 20, 0.75, -1, 320, 240, nil))
			mock.ExpectRollback()

			err := s.RunReadOnly(context.Background(), func(tx store.Tx) error {
				got, err := tx.ListDetections(context.Background(), tc.prefix)
				if err != nil {
					return err
				}
				if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 || got[1].Confidence != 0.75 {
					t.Errorf("ListDetections = %+v", got)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("RunReadOnly: %v", err)
			}
		})
	}
}

func TestInsertDetection(t *testing.T) {
	s, mock := newMockStore(t, SQLite)
	d := model.Detection{ID: 1, SessionID: "s1", CreatedAt: 10, UpdatedAt: 10,
		Confidence: 0.9, ClassID: -1, Width: 640, Height: 480, Image: []byte{0xFF}}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO detections`).
		WithArgs("s1", int32(1), int64(10), int64(10), float32(0.9), int32(-1), int32(640), int32(480), []byte{0xFF}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Tx) error {
		return tx.InsertDetection(context.Background(), d)
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
}
