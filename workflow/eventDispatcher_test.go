package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyPublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delivered []IssueEvent
}

func (p *flakyPublisher) Publish(ctx context.Context, event IssueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("backend unavailable")
	}
	p.delivered = append(p.delivered, event)
	return nil
}

func (p *flakyPublisher) snapshot() (int, []IssueEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]IssueEvent(nil), p.delivered...)
}

func TestEventDispatcher_RetriesThenDelivers(t *testing.T) {
	backend := &flakyPublisher{failFirst: 2}
	d := NewEventDispatcher(backend, quietLogger(), 4)
	d.InitialBackoff = time.Millisecond
	d.MaxBackoff = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	if err := d.Publish(ctx, IssueEvent{Type: IssueEventApproved, IssueId: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, delivered := backend.snapshot(); len(delivered) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event was not delivered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	d.Wait()

	calls, delivered := backend.snapshot()
	if calls != 3 || delivered[0].IssueId != 1 {
		t.Fatalf("calls=%d delivered=%+v", calls, delivered)
	}
}

func TestEventDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	backend := &flakyPublisher{failFirst: 100}
	d := NewEventDispatcher(backend, quietLogger(), 1)
	d.MaxAttempts = 3
	d.InitialBackoff = time.Millisecond

	d.deliver(context.Background(), IssueEvent{Type: IssueEventDenied, IssueId: 2})

	if calls, delivered := backend.snapshot(); calls != 3 || len(delivered) != 0 {
		t.Fatalf("calls=%d delivered=%d", calls, len(delivered))
	}
}

func TestEventDispatcher_FullQueueAndShutdownDrain(t *testing.T) {
	backend := &flakyPublisher{}
	d := NewEventDispatcher(backend, quietLogger(), 2)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		if err := d.Publish(ctx, IssueEvent{IssueId: i}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := d.Publish(ctx, IssueEvent{IssueId: 3}); !errors.Is(err, errEventQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}

	// a dispatcher started after cancellation only drains
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	d.Start(cancelled)
	d.Wait()

	if _, delivered := backend.snapshot(); len(delivered) != 2 {
		t.Fatalf("drained %d events, want 2", len(delivered))
	}
}

func TestIssueEvent_RoutingKey(t *testing.T) {
	event := IssueEvent{Type: IssueEventApproved, ItemId: 7}
	if got := event.RoutingKey(); got != "issue.approved.item.7" {
		t.Fatalf("routing key = %q", got)
	}
}
