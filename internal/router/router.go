// Package router maps inbound topics to classification handlers.
package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/envelope"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/messaging"
	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/metrics"
)

// Handler processes one dispatched envelope. Implementations must not
// call back into Register or Dispatch.
type Handler interface {
	Handle(ctx context.Context, env *envelope.Envelope)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *envelope.Envelope)

func (f HandlerFunc) Handle(ctx context.Context, env *envelope.Envelope) { f(ctx, env) }

// Router holds the topic-to-handler table. Registration is many-to-one:
// several topics may share one handler instance. Dispatch is the sole
// caller of handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	subs     map[string]messaging.Subscription

	transport messaging.Client
	receive   messaging.MessageHandler

	logger *slog.Logger
}

// New creates an empty Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]Handler),
		subs:     make(map[string]messaging.Subscription),
		logger:   logger,
	}
}

// Register installs a handler for a topic, overwriting any prior handler
// for the same topic. If a transport is attached and connected, the topic
// is subscribed immediately.
func (r *Router) Register(topic string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[topic] = h
	r.logger.Info("registered handler", "topic", topic)

	if r.transport == nil || !r.transport.IsConnected() {
		return
	}
	if _, subscribed := r.subs[topic]; subscribed {
		return
	}
	sub, err := r.transport.Subscribe(topic, r.receive)
	if err != nil {
		r.logger.Error("subscribe failed", "topic", topic, "error", err)
		return
	}
	r.subs[topic] = sub
}

// Attach binds the router to a transport and subscribes every registered
// topic. receive is invoked on the transport's delivery path for each
// inbound message.
func (r *Router) Attach(transport messaging.Client, receive messaging.MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transport = transport
	r.receive = receive

	for topic := range r.handlers {
		if _, subscribed := r.subs[topic]; subscribed {
			continue
		}
		sub, err := transport.Subscribe(topic, receive)
		if err != nil {
			return err
		}
		r.subs[topic] = sub
		r.logger.Info("subscribed", "topic", topic)
	}
	return nil
}

// Detach unsubscribes every topic and forgets the transport.
func (r *Router) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for topic, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			r.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
		delete(r.subs, topic)
	}
	r.transport = nil
	r.receive = nil
}

// Dispatch routes an envelope to the handler registered for its topic.
// An unregistered topic is a configuration error, not a transient
// failure: the message is logged and dropped, with no retry and no
// dead-letter queue.
func (r *Router) Dispatch(ctx context.Context, env *envelope.Envelope) {
	r.mu.RLock()
	h, ok := r.handlers[env.Topic]
	r.mu.RUnlock()

	if !ok {
		metrics.RoutingMisses.Inc()
		r.logger.Warn("no handler registered for topic, dropping message",
			"topic", env.Topic, "envelope_id", env.ID)
		return
	}
	h.Handle(ctx, env)
}

// Topics returns the currently registered topics.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		topics = append(topics, topic)
	}
	return topics
}
