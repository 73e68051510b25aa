package session

import "time"

// Event is an external or timer stimulus fed into the session's single
// transition entry point. Client-originated events arrive over the attempt's
// WebSocket; ticks come from the session's own ticker goroutine. Whatever the
// interleaving, the session lock serializes them.
type Event interface {
	isEvent()
}

// TickEvent carries the observation time; every countdown is re-derived from
// its absolute deadline against this value.
type TickEvent struct {
	Now time.Time
}

// PlaybackEndedEvent reports that the client finished playing the current
// instruction or question audio.
type PlaybackEndedEvent struct{}

// PlaybackErrorEvent reports a failed playback; the machine advances exactly as
// if playback had ended.
type PlaybackErrorEvent struct{}

// RecordingStoppedEvent reports the capture device stopping on the client. It
// races the server-side duration deadline by design; whichever arrives first
// performs the transition and the loser is ignored.
type RecordingStoppedEvent struct{}

// DeviceFailedEvent reports microphone denial or acquisition failure. The
// affected question is skipped, never wedging the machine.
type DeviceFailedEvent struct{}

func (TickEvent) isEvent()             {}
func (PlaybackEndedEvent) isEvent()    {}
func (PlaybackErrorEvent) isEvent()    {}
func (RecordingStoppedEvent) isEvent() {}
func (DeviceFailedEvent) isEvent()     {}

// Notice is a state push to the candidate's client.
type Notice struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Notifier delivers notices; implementations must not block the session.
type Notifier interface {
	Notify(Notice)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

const (
	NoticeRemaining      = "remaining"       // timed parts: seconds left
	NoticePhase          = "phase"           // speaking: part/question/phase/timeLeft
	NoticePlay           = "play"            // speaking: client should play an audio cue
	NoticeCue            = "cue"             // speaking: thinking finished, play cue tone
	NoticeStartRecording = "start_recording" // speaking: open capture for N seconds
	NoticeStopRecording  = "stop_recording"  // speaking: duration elapsed server-side
	NoticeCompleted      = "completed"       // speaking: all parts done, uploaded count
	NoticeSubmitted      = "submitted"
	NoticeSubmitError    = "submit_error"
)
