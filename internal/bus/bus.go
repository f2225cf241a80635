// Package bus is the cross-context broadcast for storage changes. Views in
// the same process and in other processes sharing the Redis keyspace all
// subscribe here instead of watching keys themselves.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

type Topic string

const (
	// TopicCartChanged fires on every cart mutation except a full clear.
	TopicCartChanged Topic = "storefront:cart-changed"
	// TopicPricingChanged fires when the pricing snapshot is replaced.
	TopicPricingChanged Topic = "storefront:pricing-changed"
	// TopicCartCleared fires once when the cart is fully cleared, carrying
	// the names of every key that was deleted. Listeners reset to zero
	// instead of re-deriving from an empty list.
	TopicCartCleared Topic = "storefront:cart-cleared"
)

// Event names the logical storage keys that changed so listeners can filter.
type Event struct {
	Topic Topic    `json:"-"`
	Keys  []string `json:"keys"`
}

type Bus interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe returns a channel of events for the given topics and a stop
	// function. The channel closes after stop is called.
	Subscribe(ctx context.Context, topics ...Topic) (<-chan Event, func(), error)
}

func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

type RedisBus struct {
	client *redis.Client
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, string(e.Topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s failed: %w", e.Topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...Topic) (<-chan Event, func(), error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = string(t)
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe failed: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				log.Printf("bad event payload on %s: %v", msg.Channel, err)
				continue
			}
			e.Topic = Topic(msg.Channel)
			out <- e
		}
	}()

	stop := func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("error closing subscription: %v", err)
		}
	}
	return out, stop, nil
}
