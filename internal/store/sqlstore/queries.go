package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
)

func (t *txStore) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := t.query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE active = 1
		ORDER BY session_id`)
	if err != nil {
		return nil, store.TxError("query active sessions", err)
	}
	defer rows.Close()
	return collectSessions(rows, "scan active session")
}

func (t *txStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s, err := scanSession(t.queryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.TxError("get session", err)
	}
	return &s, nil
}

func (t *txStore) InsertSession(ctx context.Context, s model.Session) error {
	_, err := t.exec(ctx, `
		INSERT INTO sessions (session_id, active, opened_at, closed_at)
		VALUES (?, ?, ?, ?)`,
		s.ID, activeFlag(s.Active), s.OpenedAt, nullInt64Ptr(s.ClosedAt),
	)
	if err != nil {
		return store.TxError("insert session "+s.ID, err)
	}
	return nil
}

func (t *txStore) UpdateSession(ctx context.Context, s model.Session) error {
	res, err := t.exec(ctx, `
		UPDATE sessions SET active = ?, opened_at = ?, closed_at = ?
		WHERE session_id = ?`,
		activeFlag(s.Active), s.OpenedAt, nullInt64Ptr(s.ClosedAt), s.ID,
	)
	if err != nil {
		return store.TxError("update session "+s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.TxError("update session "+s.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("session %q: %w", s.ID, store.ErrNotFound)
	}
	return nil
}

func (t *txStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := t.query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, store.TxError("list sessions", err)
	}
	defer rows.Close()
	return collectSessions(rows, "scan session")
}

func collectSessions(rows *sql.Rows, op string) ([]model.Session, error) {
	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, store.TxError(op, err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, store.TxError(op, err)
	}
	return sessions, nil
}

func (t *txStore) CountDetections(ctx context.Context, sessionID string) (int32, error) {
	var n int32
	err := t.queryRow(ctx, `
		SELECT COUNT(*) FROM detections WHERE session_id = ?`,
		sessionID,
	).Scan(&n)
	if err != nil {
		return 0, store.TxError("count detections", err)
	}
	return n, nil
}

// ListDetections scans the session index by prefix, so a full session id
// matches that session and an empty prefix matches everything.
func (t *txStore) ListDetections(ctx context.Context, sessionPrefix string) ([]model.Detection, error) {
	q := `SELECT ` + detectionColumns + ` FROM detections`
	var args []any
	lo, hi := RangeForPrefix(sessionPrefix)
	switch {
	case lo != "" && hi != "":
		q += ` WHERE session_id >= ? AND session_id < ?`
		args = append(args, lo, hi)
	case lo != "":
		q += ` WHERE session_id >= ?`
		args = append(args, lo)
	}
	q += ` ORDER BY session_id, detection_id`

	rows, err := t.query(ctx, q, args...)
	if err != nil {
		return nil, store.TxError("list detections", err)
	}
	defer rows.Close()

	var detections []model.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, store.TxError("scan detection", err)
		}
		detections = append(detections, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.TxError("list detections", err)
	}
	return detections, nil
}

// NextDetectionID allocates from one sequence shared by every session, so a
// detection id names a single record.
func (t *txStore) NextDetectionID(ctx context.Context) (int32, error) {
	var next int32
	err := t.queryRow(ctx, `
		SELECT COALESCE(MAX(detection_id), 0) + 1 FROM detections`,
	).Scan(&next)
	if err != nil {
		return 0, store.TxError("next detection id", err)
	}
	return next, nil
}

func (t *txStore) InsertDetection(ctx context.Context, d model.Detection) error {
	_, err := t.exec(ctx, `
		INSERT INTO detections (
			session_id, detection_id, created_at, updated_at,
			confidence, class_id, width, height, image
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.ID, d.CreatedAt, d.UpdatedAt,
		d.Confidence, d.ClassID, d.Width, d.Height, d.Image,
	)
	if err != nil {
		return store.TxError(fmt.Sprintf("insert detection %s/%d", d.SessionID, d.ID), err)
	}
	return nil
}
