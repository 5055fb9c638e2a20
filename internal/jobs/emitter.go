package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

// Failure is the error a job returns after reporting it through Fail.
// The runner uses it to tell reported failures from unreported ones.
type Failure struct {
	Kind    domain.ErrorKind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Emitter is the reporting surface handed to a running job.
// It numbers events, publishes them, and guarantees that at most one terminal
// event is sent and that nothing follows it.
type Emitter struct {
	jobID  string
	pub    domain.Publisher
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	seq      int64
	terminal bool
}

func newEmitter(jobID string, pub domain.Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{
		jobID:  jobID,
		pub:    pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// JobID returns the identifier events are addressed to.
func (e *Emitter) JobID() string {
	return e.jobID
}

// Progress reports percent (clamped to 0..100). Ignored after a terminal event.
func (e *Emitter) Progress(percent int, message string) {
	percent = min(max(percent, 0), 100)
	e.emit(domain.Event{
		Type:     domain.EventProgress,
		Progress: percent,
		Message:  message,
	}, false)
}

// Complete reports success with result as the payload.
// A result that cannot be encoded turns into a SYSTEM_ERROR event.
func (e *Emitter) Complete(result any, message string) {
	data, err := json.Marshal(result)
	if err != nil {
		_ = e.Fail(domain.KindSystemError, "cannot encode job result", err)
		return
	}
	e.emit(domain.Event{
		Type:    domain.EventComplete,
		Result:  data,
		Message: message,
	}, true)
}

// Fail reports a terminal error and returns it as *Failure so the caller can
// return it in the same statement. The message sent to subscribers includes
// cause, when present.
func (e *Emitter) Fail(kind domain.ErrorKind, message string, cause error) error {
	text := message
	if cause != nil {
		text = fmt.Sprintf("%s: %v", message, cause)
	}
	e.emit(domain.Event{
		Type:    domain.EventError,
		Kind:    kind,
		Message: text,
	}, true)
	return &Failure{Kind: kind, Message: message, Err: cause}
}

// Terminated reports whether a terminal event has been emitted.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

func (e *Emitter) emit(event domain.Event, terminal bool) {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		e.logger.Debug("Dropping event after terminal", "jobID", e.jobID, "type", event.Type)
		return
	}
	e.seq++
	event.JobID = e.jobID
	event.Seq = e.seq
	event.Timestamp = e.now()
	e.terminal = terminal

	// Publishing under the lock keeps per-job order equal to emission order.
	defer e.mu.Unlock()

	// The job's context may already be cancelled; delivery must not depend on it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.pub.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish job event", "jobID", e.jobID, "seq", event.Seq, "type", event.Type, "error", err)
	}
}
