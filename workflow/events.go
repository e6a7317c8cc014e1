package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	IssueEventSubmitted = "issue.submitted"
	IssueEventApproved  = "issue.approved"
	IssueEventDenied    = "issue.denied"
)

// IssueEvent is published after an issue state change has committed.
type IssueEvent struct {
	Type           string             `json:"type"`
	IssueId        int                `json:"issue_id"`
	ItemId         int                `json:"item_id"`
	FromLocationId int                `json:"from_location_id"`
	ToLocationId   int                `json:"to_location_id"`
	Quantity       int                `json:"quantity"`
	Status         models.IssueStatus `json:"status"`
	ActorId        int                `json:"actor_id"`
	CorrelationId  string             `json:"correlation_id"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

func NewIssueEvent(ctx context.Context, eventType string, issue *models.IssueRequest, actorId int) IssueEvent {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	occurredAt := issue.CreatedAt
	if issue.ResolvedAt != nil {
		occurredAt = *issue.ResolvedAt
	}
	return IssueEvent{
		Type:           eventType,
		IssueId:        issue.ID,
		ItemId:         issue.ItemId,
		FromLocationId: issue.FromLocationId,
		ToLocationId:   issue.ToLocationId,
		Quantity:       issue.Quantity,
		Status:         issue.Status,
		ActorId:        actorId,
		CorrelationId:  correlationId,
		OccurredAt:     occurredAt,
	}
}

func eventTypeFor(status models.IssueStatus) string {
	if status == models.IssueStatusDenied {
		return IssueEventDenied
	}
	return IssueEventApproved
}

// RoutingKey is issue.<type suffix>.item.<id>, e.g. issue.approved.item.7.
func (e IssueEvent) RoutingKey() string {
	return fmt.Sprintf("%s.item.%d", e.Type, e.ItemId)
}

type EventPublisher interface {
	Publish(ctx context.Context, event IssueEvent) error
}

// LogPublisher writes events to the process log. It is the default backend.
type LogPublisher struct {
	logger *logrus.Logger
}

func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event IssueEvent) error {
	p.logger.WithFields(logrus.Fields{
		"field":          "IssueEvent",
		"type":           event.Type,
		"issue_id":       event.IssueId,
		"item_id":        event.ItemId,
		"actor_id":       event.ActorId,
		"correlation_id": event.CorrelationId,
	}).Info("issue event")
	return nil
}

// NewEventPublisher builds the backend chosen by EVENTS_BACKEND. The returned close func is never nil.
func NewEventPublisher(ctx context.Context, logger *logrus.Logger) (EventPublisher, func(), error) {
	switch config.EventsBackend() {
	case config.EventsBackendPubSub:
		p, err := NewPubSubPublisher(ctx)
		if err != nil {
			return nil, func() {}, err
		}
		return p, p.Stop, nil
	case config.EventsBackendAMQP:
		p, err := DialAMQPPublisher(config.AMQPURL(), config.AMQPExchange())
		if err != nil {
			return nil, func() {}, err
		}
		return p, func() { _ = p.Close() }, nil
	default:
		return NewLogPublisher(logger), func() {}, nil
	}
}
