package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/insectcam/internal/model"
)

// ErrTransaction wraps every failure to begin, run, or commit a transaction.
var ErrTransaction = errors.New("transaction error")

// ErrNotFound is returned when a lookup by key matches nothing.
var ErrNotFound = errors.New("not found")

// TxError wraps err as a transaction failure for op, unless it already is one.
func TxError(op string, err error) error {
	if err == nil || errors.Is(err, ErrTransaction) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransaction, op, err)
}

// Tx is the view of the store inside a single transaction. Reads in a
// read-only transaction see one consistent snapshot.
type Tx interface {
	// Sessions
	ActiveSessions(ctx context.Context) ([]model.Session, error) // active = 1, exact match
	GetSession(ctx context.Context, id string) (*model.Session, error)
	InsertSession(ctx context.Context, s model.Session) error // fails if the id exists
	UpdateSession(ctx context.Context, s model.Session) error
	ListSessions(ctx context.Context) ([]model.Session, error) // primary key order

	// Detections
	CountDetections(ctx context.Context, sessionID string) (int32, error)
	ListDetections(ctx context.Context, sessionPrefix string) ([]model.Detection, error) // (session_id, detection_id) order
	// NextDetectionID is unique across sessions.
	NextDetectionID(ctx context.Context) (int32, error)
	InsertDetection(ctx context.Context, d model.Detection) error
}

// Store is the transactional record store shared by the session and
// detection actors.
type Store interface {
	// RunInTransaction runs fn in a read-write transaction and commits if fn
	// returns nil. Any error rolls the transaction back.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// RunReadOnly runs fn in a read-only transaction.
	RunReadOnly(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
