package envelope

// Command topics, read from the command bus. Matching is exact and
// case-sensitive.
const (
	TopicSessionOpen       = "session.open"
	TopicSessionClose      = "session.close"
	TopicSessionAll        = "session.all"
	TopicSessionDetections = "session.detections"
	TopicSessionStateSet   = "session.state.set"

	TopicCaptureGet   = "state.capture.get"
	TopicCaptureSet   = "state.capture.set"
	TopicStreamingGet = "state.streaming.get"
	TopicStreamingSet = "state.streaming.set"

	TopicCameraGet      = "camera.get"
	TopicCameraStateSet = "camera.state.set"
)

// Event topics, published on the event bus.
const (
	TopicSessionClosed  = "session.closed"
	TopicSessionOpened  = "session.opened"
	TopicSessionDetails = "session.details"
	TopicDetection      = "detection"

	TopicCaptureState   = "state.capture"
	TopicStreamingState = "state.streaming"
	// TopicStreamState is what state.streaming.set answers with.
	TopicStreamState = "state.stream"

	TopicCameraState = "camera.state"
)
