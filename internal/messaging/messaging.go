// Package messaging provides abstractions for message broker communication.
// The routing engine consumes these interfaces so it is never coupled to a
// specific broker implementation.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to the broker.
type Message struct {
	// Topic is the subject the message was published to.
	Topic string

	// Data is the raw message payload.
	Data []byte

	// Timestamp is when the message was received by the client.
	Timestamp time.Time
}

// MessageHandler processes a received message. Errors are logged by the
// transport; they never propagate back to the broker.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a topic.
type Subscription interface {
	// Unsubscribe stops receiving messages on this subscription.
	Unsubscribe() error

	// Topic returns the topic this subscription is listening to.
	Topic() string
}

// Publisher publishes messages to topics.
type Publisher interface {
	// Publish sends a fire-and-forget message to the specified topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Subscriber subscribes to messages on topics.
type Subscriber interface {
	// Subscribe creates a subscription to the specified topic.
	// Subscribing to the same topic twice is idempotent at the engine
	// level; the router guards against duplicate subscriptions.
	Subscribe(topic string, handler MessageHandler) (Subscription, error)

	// Close releases any resources and unsubscribes all subscriptions.
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain gracefully closes the connection, allowing in-flight
	// messages to complete.
	Drain() error

	// IsConnected returns true if the client is connected to the broker.
	IsConnected() bool
}
