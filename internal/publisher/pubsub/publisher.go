// Package pubsub publishes accepted page records to a Google Cloud
// Pub/Sub topic for downstream pipelines.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/harvestkit/harvestkit/internal/crawler"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects a Pub/Sub client and binds the topic.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, topic: client.Topic(topicID)}, nil
}

// Publish marshals the record to JSON and publishes it, returning the
// server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, record crawler.PageRecord) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal page record: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"domain":       record.Domain,
			"content_type": record.ContentType,
			"run_id":       record.RunID,
		},
	}
	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish page record: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	if p.topic != nil {
		p.topic.Stop()
	}
	return p.client.Close()
}
