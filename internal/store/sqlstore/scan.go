package sqlstore

import (
	"database/sql"

	"github.com/alfredjeanlab/insectcam/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

const sessionColumns = `session_id, active, opened_at, closed_at`

const detectionColumns = `session_id, detection_id, created_at, updated_at,
	confidence, class_id, width, height, image`

// scanSession scans a row in sessionColumns order.
func scanSession(row scannable) (model.Session, error) {
	var (
		s        model.Session
		active   int64
		closedAt sql.NullInt64
	)
	if err := row.Scan(&s.ID, &active, &s.OpenedAt, &closedAt); err != nil {
		return model.Session{}, err
	}
	s.Active = active == 1
	if closedAt.Valid {
		v := closedAt.Int64
		s.ClosedAt = &v
	}
	return s, nil
}

// scanDetection scans a row in detectionColumns order.
func scanDetection(row scannable) (model.Detection, error) {
	var d model.Detection
	err := row.Scan(
		&d.SessionID,
		&d.ID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.Confidence,
		&d.ClassID,
		&d.Width,
		&d.Height,
		&d.Image,
	)
	if err != nil {
		return model.Detection{}, err
	}
	return d, nil
}

// activeFlag is the integer stored for Session.Active. Both backends keep
// the column numeric so "active = 1" means the same thing everywhere.
func activeFlag(active bool) int {
	if active {
		return 1
	}
	return 0
}

func nullInt64Ptr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
