package broker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

// subscriberBuffer is how many undelivered events a subscriber may lag behind
// before further events are dropped for it.
const subscriberBuffer = 32

// Memory is an in-process notification channel for single-process
// deployments (BROKER=memory).
// Subscribers of the same job all receive every event (broadcast). A short
// history per job is kept so a late subscriber can replay what it missed.
type Memory struct {
	// mu protects subs and logs.
	mu   sync.Mutex
	subs map[string]map[chan domain.Event]struct{}
	logs map[string]*jobLog

	maxEvents int
	retention time.Duration
	now       func() time.Time
}

type jobLog struct {
	events  []domain.Event
	touched time.Time
}

// Ensure Memory satisfies the interface
var _ domain.Channel = (*Memory)(nil)

// NewMemory creates a hub keeping at most maxEvents per job for retention.
func NewMemory(maxEvents int, retention time.Duration) *Memory {
	if maxEvents <= 0 {
		maxEvents = 100
	}
	return &Memory{
		subs:      make(map[string]map[chan domain.Event]struct{}),
		logs:      make(map[string]*jobLog),
		maxEvents: maxEvents,
		retention: retention,
		now:       time.Now,
	}
}

// Publish records the event and hands it to every live subscriber without
// blocking. A subscriber whose buffer is full misses the event.
func (m *Memory) Publish(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)

	log, ok := m.logs[event.JobID]
	if !ok {
		log = &jobLog{}
		m.logs[event.JobID] = log
	}
	log.events = append(log.events, event)
	if len(log.events) > m.maxEvents {
		trim := len(log.events) - m.maxEvents
		log.events = append([]domain.Event(nil), log.events[trim:]...)
	}
	log.touched = now

	for ch := range m.subs[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Subscriber lagging, dropping event", "jobID", event.JobID, "seq", event.Seq)
		}
	}
	return nil
}

// prune drops histories idle for longer than retention. Callers hold mu.
func (m *Memory) prune(now time.Time) {
	if m.retention <= 0 {
		return
	}
	for id, log := range m.logs {
		if now.Sub(log.touched) > m.retention {
			delete(m.logs, id)
		}
	}
}

// Subscribe attaches a subscriber to jobID until ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, jobID string) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, subscriberBuffer)

	m.mu.Lock()
	if m.subs[jobID] == nil {
		m.subs[jobID] = make(map[chan domain.Event]struct{})
	}
	m.subs[jobID][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs[jobID], ch)
		if len(m.subs[jobID]) == 0 {
			delete(m.subs, jobID)
		}
		m.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// History returns a copy of the retained events of jobID.
func (m *Memory) History(_ context.Context, jobID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune(m.now())
	log, ok := m.logs[jobID]
	if !ok {
		return nil, nil
	}
	return append([]domain.Event(nil), log.events...), nil
}
