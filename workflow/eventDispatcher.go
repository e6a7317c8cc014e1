package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/sirupsen/logrus"
)

var errEventQueueFull = fmt.Errorf("event queue full")

// EventDispatcher decouples request handling from the event backend. Publish only enqueues;
// Start delivers queued events in the background until ctx is done, then drains what is left once.
type EventDispatcher struct {
	Backend      EventPublisher
	Logger       *logrus.Logger
	DispatcherID string

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	queue chan IssueEvent
	wg    sync.WaitGroup
}

var _ EventPublisher = (*EventDispatcher)(nil)

func NewEventDispatcher(backend EventPublisher, logger *logrus.Logger, bufferSize int) *EventDispatcher {
	if logger == nil {
		logger = config.GetLogger()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventDispatcher{
		Backend:        backend,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		queue:          make(chan IssueEvent, bufferSize),
	}
}

// Publish never blocks; a full queue is reported to the caller, which only logs it.
func (d *EventDispatcher) Publish(ctx context.Context, event IssueEvent) error {
	select {
	case d.queue <- event:
		return nil
	default:
		return errEventQueueFull
	}
}

func (d *EventDispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

func (d *EventDispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case event := <-d.queue:
			d.deliver(ctx, event)
		}
	}
}

// Wait blocks until the background loop started by Start has returned.
func (d *EventDispatcher) Wait() {
	d.wg.Wait()
}

func (d *EventDispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-d.queue:
			if err := d.Backend.Publish(ctx, event); err != nil {
				d.logFailure(event, 1, err).Error("event dropped during shutdown")
			}
		default:
			return
		}
	}
}

func (d *EventDispatcher) deliver(ctx context.Context, event IssueEvent) {
	backoff := d.InitialBackoff
	for attempt := 1; ; attempt++ {
		err := d.Backend.Publish(ctx, event)
		if err == nil {
			return
		}
		if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
			d.logFailure(event, attempt, err).Error("event publish gave up after max attempts")
			return
		}
		d.logFailure(event, attempt, err).Warn("event publish failed; retrying in " + backoff.String())
		select {
		case <-ctx.Done():
			// re-queue so drain gets a last try
			select {
			case d.queue <- event:
			default:
			}
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > d.MaxBackoff {
			backoff = d.MaxBackoff
		}
	}
}

func (d *EventDispatcher) logFailure(event IssueEvent, attempt int, err error) *logrus.Entry {
	return d.Logger.WithFields(logrus.Fields{
		"field":          "EventDispatcher",
		"dispatcher_id":  d.DispatcherID,
		"type":           event.Type,
		"issue_id":       event.IssueId,
		"correlation_id": event.CorrelationId,
		"attempt":        attempt,
		"error":          err.Error(),
	})
}
