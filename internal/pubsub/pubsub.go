// Package pubsub provides the publish/subscribe channel that carries change
// notifications from the session managers to the broadcast coordinator.
package pubsub

import (
	"context"
	"errors"
)

// ErrClosed is reported by subscriptions ended because their broker shut down.
var ErrClosed = errors.New("broker closed")

// Message is one payload delivered on a topic.
type Message struct {
	Topic   string
	Payload []byte
}

// Subscription is a live, ordered stream of messages for one topic.
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the subscription ends.
	Messages() <-chan Message
	// Err reports why the subscription ended. It is nil while the subscription
	// is live and after a Close initiated by the subscriber.
	Err() error
	// Close ends the subscription. Safe to call more than once.
	Close() error
}

// Broker publishes payloads to topics and opens subscriptions on them.
//
// Within one topic, messages are delivered to every subscription in publish order.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}
