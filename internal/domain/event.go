package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ErrorKind is the short machine-readable tag carried by error events.
type ErrorKind string

const (
	KindProjectNotFound     ErrorKind = "PROJECT_NOT_FOUND"
	KindVideoNotFound       ErrorKind = "VIDEO_NOT_FOUND"
	KindMediaStoreFailed    ErrorKind = "CLOUDINARY_UPLOAD_FAILED"
	KindTranscodeFailed     ErrorKind = "FFMPEG_FAILED"
	KindDatabaseError       ErrorKind = "DATABASE_ERROR"
	KindSubtitlesEmpty      ErrorKind = "SUB_EMPTY"
	KindSystemError         ErrorKind = "SYSTEM_ERROR"
	KindTaskExecutionFailed ErrorKind = "TASK_EXECUTION_FAILED"
)

// Event is one message of a job's stream.
// Seq starts at 1 for every job and increases by one per event.
type Event struct {
	JobID     string
	Seq       int64
	Type      EventType
	Progress  int
	Result    json.RawMessage
	Kind      ErrorKind
	Message   string
	Timestamp time.Time
}

// Terminal reports whether no further events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// wireEvent is the JSON shape shared by every transport.
// Progress events carry "progress"; terminal events carry "status".
type wireEvent struct {
	JobID     string          `json:"jobId"`
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Progress  *int            `json:"progress,omitempty"`
	Status    string          `json:"status,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Message   string          `json:"message"`
}

// MarshalJSON renders the event in its wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		JobID:     e.JobID,
		Seq:       e.Seq,
		Timestamp: e.Timestamp,
		Message:   e.Message,
	}

	switch e.Type {
	case EventProgress:
		p := e.Progress
		w.Progress = &p
	case EventComplete:
		w.Status = string(EventComplete)
		w.Result = e.Result
		if len(w.Result) == 0 {
			w.Result = json.RawMessage("null")
		}
	case EventError:
		w.Status = string(EventError)
		w.Error = string(e.Kind)
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}

	return json.Marshal(w)
}

// UnmarshalJSON restores an event from its wire shape.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*e = Event{
		JobID:     w.JobID,
		Seq:       w.Seq,
		Timestamp: w.Timestamp,
		Message:   w.Message,
	}

	switch {
	case w.Status == string(EventComplete):
		e.Type = EventComplete
		e.Result = w.Result
	case w.Status == string(EventError):
		e.Type = EventError
		e.Kind = ErrorKind(w.Error)
	case w.Progress != nil:
		e.Type = EventProgress
		e.Progress = *w.Progress
	default:
		return fmt.Errorf("event %s/%d: neither progress nor status set", w.JobID, w.Seq)
	}
	return nil
}
