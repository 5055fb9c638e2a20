package broker

import (
	"context"
	"testing"
	"time"

	"github.com/dontdude/vedit/internal/domain"
)

func progress(jobID string, seq int64, pct int) domain.Event {
	return domain.Event{JobID: jobID, Seq: seq, Type: domain.EventProgress, Progress: pct}
}

func receive(t *testing.T, ch <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.Event{}
}

func TestMemoryBroadcastsToAllSubscribers(t *testing.T) {
	m := NewMemory(10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := m.Subscribe(ctx, "job-1")
	b, _ := m.Subscribe(ctx, "job-1")
	other, _ := m.Subscribe(ctx, "job-2")

	if err := m.Publish(ctx, progress("job-1", 1, 10)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if e := receive(t, a); e.Progress != 10 {
		t.Fatalf("a got %+v", e)
	}
	if e := receive(t, b); e.Progress != 10 {
		t.Fatalf("b got %+v", e)
	}
	select {
	case e := <-other:
		t.Fatalf("subscriber of another job got %+v", e)
	default:
	}
}

func TestMemoryPublishWithoutSubscribers(t *testing.T) {
	m := NewMemory(10, time.Minute)
	if err := m.Publish(context.Background(), progress("nobody", 1, 0)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// A late subscriber sees nothing live but can replay the history.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := m.Subscribe(ctx, "nobody")
	select {
	case e := <-ch:
		t.Fatalf("late subscriber received %+v", e)
	case <-time.After(20 * time.Millisecond):
	}

	history, _ := m.History(ctx, "nobody")
	if len(history) != 1 {
		t.Fatalf("history len = %d, want 1", len(history))
	}
}

func TestMemoryHistoryCapsAndExpires(t *testing.T) {
	m := NewMemory(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_ = m.Publish(ctx, progress("job", int64(i), i*10))
	}

	history, _ := m.History(ctx, "job")
	if len(history) != 2 || history[0].Seq != 2 || history[1].Seq != 3 {
		t.Fatalf("history = %+v, want seqs 2,3", history)
	}

	now = now.Add(2 * time.Minute)
	history, _ = m.History(ctx, "job")
	if len(history) != 0 {
		t.Fatalf("history after retention = %+v, want empty", history)
	}
}

func TestMemorySubscriptionClosesOnCancel(t *testing.T) {
	m := NewMemory(10, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := m.Subscribe(ctx, "job")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	// Publishing after the subscriber left must not panic on a closed channel.
	if err := m.Publish(context.Background(), progress("job", 1, 0)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestMemoryDropsForLaggingSubscriber(t *testing.T) {
	m := NewMemory(100, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := m.Subscribe(ctx, "job")

	for i := 0; i < subscriberBuffer+5; i++ {
		_ = m.Publish(ctx, progress("job", int64(i+1), 1))
	}

	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", got, subscriberBuffer)
	}
}
