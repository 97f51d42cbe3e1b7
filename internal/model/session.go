package model

import "time"

// SessionIDLayout formats a session id from local time at second precision
// (%Y%m%d%H%M%S). Ids sort lexicographically in chronological order.
const SessionIDLayout = "20060102150405"

// Session is one capture session. At most one session is Active at any
// committed point in time.
type Session struct {
	ID       string `json:"session_id"`
	Active   bool   `json:"active"`
	OpenedAt int64  `json:"opened_at"`           // epoch millis
	ClosedAt *int64 `json:"closed_at,omitempty"` // epoch millis, nil while open
}

// NewSession returns an active session opened at now.
func NewSession(now time.Time) Session {
	return Session{
		ID:       SessionID(now),
		Active:   true,
		OpenedAt: now.UnixMilli(),
	}
}

// SessionID derives the id of a session opened at t.
func SessionID(t time.Time) string {
	return t.Local().Format(SessionIDLayout)
}

// Close marks the session inactive as of now.
func (s *Session) Close(now time.Time) {
	closed := now.UnixMilli()
	s.Active = false
	s.ClosedAt = &closed
}
