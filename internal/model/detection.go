package model

// Detection is one scored object found in a frame, recorded against the
// session that was active when it was seen.
type Detection struct {
	ID         int32   `json:"detection_id"`
	SessionID  string  `json:"session_id"`
	CreatedAt  int64   `json:"created_at"` // epoch millis
	UpdatedAt  int64   `json:"updated_at"` // epoch millis
	Confidence float32 `json:"confidence"`
	ClassID    int32   `json:"class_id"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
	Image      []byte  `json:"image,omitempty"`
}
