package worker

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Publisher delivers a message to a topic and returns its message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error)
}

// PubSubPublisher publishes to Google Cloud Pub/Sub topics.
type PubSubPublisher struct {
	client *pubsub.Client
	logger zerolog.Logger

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a new Pub/Sub publisher.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSubPublisher{
		client:     client,
		logger:     cfg.Logger,
		publishers: make(map[string]*pubsub.Publisher),
	}, nil
}

// Publish sends data to topic and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, topic string, data []byte, attributes map[string]string) (string, error) {
	result := p.publisher(topic).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attributes,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", topic, err)
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("message_id", id).
		Msg("published pubsub message")

	return id, nil
}

func (p *PubSubPublisher) publisher(topic string) *pubsub.Publisher {
	p.mu.Lock()
	defer p.mu.Unlock()

	pub, ok := p.publishers[topic]
	if !ok {
		pub = p.client.Publisher(topic)
		p.publishers[topic] = pub
	}
	return pub
}

// Close flushes pending messages and closes the Pub/Sub client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, pub := range p.publishers {
		pub.Stop()
	}
	p.mu.Unlock()

	return p.client.Close()
}
