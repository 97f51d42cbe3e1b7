package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
	"github.com/alfredjeanlab/insectcam/internal/ui"
)

// sessionView is the printable form of a SessionDetails payload.
type sessionView struct {
	Session    string `json:"session_id"`
	Active     bool   `json:"active"`
	Opened     int64  `json:"opened_at"`
	Closed     *int64 `json:"closed_at,omitempty"`
	Detections int32  `json:"detections"`
}

// detectionView is the printable form of a Detection payload. The image is
// reported by size only.
type detectionView struct {
	Session    string  `json:"session_id"`
	Detection  int32   `json:"detection_id"`
	Created    int64   `json:"created_at"`
	Updated    int64   `json:"updated_at"`
	Confidence float32 `json:"confidence"`
	Class      int32   `json:"class_id"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
	ImageBytes int     `json:"image_bytes"`
}

// eventView is one decoded event as printed by watch --json.
type eventView struct {
	Topic     string         `json:"topic"`
	State     *bool          `json:"state,omitempty"`
	Session   *sessionView   `json:"session,omitempty"`
	Detection *detectionView `json:"detection,omitempty"`
	Raw       string         `json:"raw,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newSessionView(d messages.SessionDetails) sessionView {
	return sessionView{Session: d.Session, Active: d.Active, Opened: d.Opened, Closed: d.Closed, Detections: d.Detections}
}

func newDetectionView(d messages.Detection) detectionView {
	return detectionView{
		Session:    d.Session,
		Detection:  d.Detection,
		Created:    d.Created,
		Updated:    d.Updated,
		Confidence: d.Score,
		Class:      d.Class,
		Width:      d.Width,
		Height:     d.Height,
		ImageBytes: len(d.Image),
	}
}

// decodeEvent decodes e's payload according to its topic. Unknown topics
// keep the payload as hex.
func decodeEvent(e envelope.Envelope) eventView {
	v := eventView{Topic: e.Topic}
	var err error
	switch e.Topic {
	case envelope.TopicCaptureState, envelope.TopicStreamingState, envelope.TopicStreamState, envelope.TopicCameraState:
		var on bool
		if on, err = messages.DecodeState(e.Payload); err == nil {
			v.State = &on
		}
	case envelope.TopicSessionOpened, envelope.TopicSessionClosed, envelope.TopicSessionDetails:
		var d messages.SessionDetails
		if d, err = messages.DecodeSessionDetails(e.Payload); err == nil {
			s := newSessionView(d)
			v.Session = &s
		}
	case envelope.TopicDetection:
		var d messages.Detection
		if d, err = messages.DecodeDetection(e.Payload); err == nil {
			dv := newDetectionView(d)
			v.Detection = &dv
		}
	default:
		if len(e.Payload) > 0 {
			v.Raw = hex.EncodeToString(e.Payload)
		}
	}
	if err != nil {
		v.Error = err.Error()
		v.Raw = hex.EncodeToString(e.Payload)
	}
	return v
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// printEvent writes one event line.
func printEvent(w io.Writer, e envelope.Envelope) {
	v := decodeEvent(e)
	if jsonOutput {
		printJSON(w, v)
		return
	}
	var b strings.Builder
	b.WriteString(ui.RenderTopic(v.Topic))
	switch {
	case v.Error != "":
		fmt.Fprintf(&b, " %s %s", ui.RenderWarn(v.Error), ui.RenderMuted(v.Raw))
	case v.State != nil:
		fmt.Fprintf(&b, " %s", onOff(*v.State))
	case v.Session != nil:
		s := v.Session
		fmt.Fprintf(&b, " %s active=%t opened=%s", s.Session, s.Active, formatMillis(s.Opened))
		if s.Closed != nil {
			fmt.Fprintf(&b, " closed=%s", formatMillis(*s.Closed))
		}
		fmt.Fprintf(&b, " detections=%d", s.Detections)
	case v.Detection != nil:
		d := v.Detection
		fmt.Fprintf(&b, " %s #%d class=%d score=%.3f %dx%d", d.Session, d.Detection, d.Class, d.Confidence, d.Width, d.Height)
	case v.Raw != "":
		fmt.Fprintf(&b, " %s", ui.RenderMuted(v.Raw))
	}
	fmt.Fprintln(w, b.String())
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printSessionTable(w io.Writer, sessions []sessionView) {
	if jsonOutput {
		printJSON(w, sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tACTIVE\tOPENED\tCLOSED")
	for _, s := range sessions {
		closed := "-"
		if s.Closed != nil {
			closed = formatMillis(*s.Closed)
		}
		active := ""
		if s.Active {
			active = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Session, active, formatMillis(s.Opened), closed)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d sessions\n", len(sessions))
}

func printDetectionTable(w io.Writer, detections []detectionView) {
	if jsonOutput {
		printJSON(w, detections)
		return
	}
	if len(detections) == 0 {
		fmt.Fprintln(w, "no detections")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tID\tCREATED\tCLASS\tSCORE\tSIZE\tIMAGE")
	for _, d := range detections {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%.3f\t%dx%d\t%d B\n",
			d.Session, d.Detection, formatMillis(d.Created), d.Class, d.Confidence, d.Width, d.Height, d.ImageBytes)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d detections\n", len(detections))
}
