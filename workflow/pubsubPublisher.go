package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/warehouse_backend/config"
)

// PubSubPublisher publishes issue events to PUBSUB_TOPIC.
type PubSubPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubPublisher(ctx context.Context) (*PubSubPublisher, error) {
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return nil, err
	}
	topic, err := config.IssueEventsTopic(ctx, client)
	if err != nil {
		return nil, err
	}
	return &PubSubPublisher{topic: topic}, nil
}

// Publish waits for the server-assigned id so failures surface to the caller.
func (p *PubSubPublisher) Publish(ctx context.Context, event IssueEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal issue event: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":           event.Type,
			"correlation_id": event.CorrelationId,
		},
	})
	_, err = result.Get(ctx)
	return err
}

// Stop flushes pending publishes and closes the shared client.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
	config.ClosePubSub()
}
