// Package pubsub publishes dispatch outcomes to a Google Cloud Pub/Sub
// topic using Application Default Credentials.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/mboyd/paperflow/internal/publisher"
)

// Publisher sends events to one Pub/Sub topic.
type Publisher struct {
	client *gcppubsub.Client
	topic  *gcppubsub.Topic
	logger *zap.Logger
}

// New creates a Pub/Sub client and verifies the topic exists.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after missing topic", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish sends the event as JSON. The actual send is asynchronous; the
// client batches and retries in the background.
func (p *Publisher) Publish(ctx context.Context, ev publisher.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.topic.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"date":   ev.Date,
			"status": ev.Status,
		},
	})
	return nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
