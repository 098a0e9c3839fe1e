// Package pubsub publishes completion events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/JakeFAU/product-scraper/internal/scraper"
)

// Publisher implements scraper.Notifier on a topic publisher.
type Publisher struct {
	publish    func(ctx context.Context, msg *pubsub.Message) (string, error)
	propagator propagation.TextMapPropagator
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return publisher.Publish(ctx, msg).Get(ctx)
		},
		propagator: otel.GetTextMapPropagator(),
	}
}

// Notify marshals n to JSON and waits for the server to acknowledge it.
// Trace context travels in the message attributes.
func (p *Publisher) Notify(ctx context.Context, n scraper.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"url": n.URL},
	}
	p.propagator.Inject(ctx, &carrier{attrs: msg.Attributes})

	if _, err := p.publish(ctx, msg); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// carrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type carrier struct {
	attrs map[string]string
}

func (c *carrier) Get(key string) string {
	return c.attrs[key]
}

func (c *carrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
