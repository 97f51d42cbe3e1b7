package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/insectcam/internal/model"
	"github.com/alfredjeanlab/insectcam/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version        string    `json:"version"`
	Type           string    `json:"type"`
	Timestamp      time.Time `json:"timestamp"`
	Session        string    `json:"session_id"`
	DetectionCount int       `json:"detection_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes one session and its detections as JSONL to w: a
// header, the session record, then one line per detection in id order.
// Everything is read from a single snapshot.
func ExportJSONL(ctx context.Context, s store.Store, sessionID string, w io.Writer) error {
	var (
		session    *model.Session
		detections []model.Detection
	)
	err := s.RunReadOnly(ctx, func(tx store.Tx) error {
		var err error
		session, err = tx.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("get session %s: %w", sessionID, err)
		}
		all, err := tx.ListDetections(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list detections for %s: %w", sessionID, err)
		}
		// The index scan is by prefix; keep only this session's rows.
		for _, d := range all {
			if d.SessionID == sessionID {
				detections = append(detections, d)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:        "1",
		Type:           "header",
		Timestamp:      time.Now().UTC(),
		Session:        sessionID,
		DetectionCount: len(detections),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Encode(record{Type: "session", Data: session}); err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	for _, d := range detections {
		if err := enc.Encode(record{Type: "detection", Data: d}); err != nil {
			return fmt.Errorf("encode detection %d: %w", d.ID, err)
		}
	}
	return nil
}
