// Package bus is the topic-based messaging layer between plugins and the
// host: one-to-many broadcast and one-to-one request/response with timeout.
// The bus is independent of plugin registration; any component may use it.
//
// The bus owns only its own subscription, responder and topic tables. It
// never touches plugin state.
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/monitor"
	"github.com/animus-host/animus/pkg/plugin"
)

// DefaultRequestTimeout bounds a request when the caller passes none.
const DefaultRequestTimeout = 5 * time.Second

// seenCacheSize bounds the replay-suppression cache.
const seenCacheSize = 4096

// Message is an ephemeral bus payload. Messages are never persisted.
type Message struct {
	ID        string        `json:"id"`
	Topic     string        `json:"topic"`
	Payload   any           `json:"payload"`
	Sender    string        `json:"sender,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

// NewMessage builds a message with a fresh id and timestamp.
func NewMessage(topic string, payload any, sender string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Sender:    sender,
		Timestamp: time.Now(),
	}
}

// expired reports whether the message's TTL has elapsed.
func (m *Message) expired(now time.Time) bool {
	return m.TTL > 0 && now.After(m.Timestamp.Add(m.TTL))
}

// Handler consumes a broadcast message. Errors are isolated per handler: a
// failing handler never blocks delivery to its peers.
type Handler func(msg *Message) error

// Responder answers a request on a topic.
type Responder func(ctx context.Context, data any) (any, error)

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Bus routes messages between publishers/subscribers and
// requesters/responders.
type Bus struct {
	mu         sync.RWMutex
	subs       map[string][]*subscription
	byID       map[string]*subscription
	responders map[string]Responder
	topics     map[string]bool

	seen           *expirable.LRU[string, struct{}]
	defaultTimeout time.Duration
	metrics        *monitor.Metrics
	log            *logrus.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics attaches Prometheus instruments to bus operations.
func WithMetrics(m *monitor.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// WithReplayWindow sets how long delivered message ids are remembered for
// replay suppression.
func WithReplayWindow(ttl time.Duration) Option {
	return func(b *Bus) {
		b.seen = expirable.NewLRU[string, struct{}](seenCacheSize, nil, ttl)
	}
}

// WithDefaultTimeout sets the request timeout used when the caller passes
// none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.defaultTimeout = d
		}
	}
}

// New creates a Bus.
func New(log *logrus.Logger, opts ...Option) *Bus {
	if log == nil {
		log = logrus.New()
	}
	b := &Bus{
		subs:           make(map[string][]*subscription),
		byID:           make(map[string]*subscription),
		responders:     make(map[string]Responder),
		topics:         make(map[string]bool),
		seen:           expirable.NewLRU[string, struct{}](seenCacheSize, nil, time.Minute),
		defaultTimeout: DefaultRequestTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler under a generated id scoped to the topic.
// All of a topic's handlers are invoked on broadcast, in registration order.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	id := fmt.Sprintf("%s:%s", topic, uuid.NewString())
	sub := &subscription{id: id, topic: topic, handler: handler}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.byID[id] = sub
	b.topics[topic] = true
	b.mu.Unlock()

	return id
}

// Unsubscribe removes exactly one handler. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[subscriptionID]
	if !ok {
		return
	}
	delete(b.byID, subscriptionID)

	list := b.subs[sub.topic]
	for i, s := range list {
		if s.id == subscriptionID {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.topic]) == 0 {
		delete(b.subs, sub.topic)
	}
}

// Broadcast synchronously invokes every handler subscribed to the message's
// topic. A handler error or panic is caught and logged and does not prevent
// delivery to the remaining handlers. Expired messages and replayed message
// ids are dropped.
func (b *Bus) Broadcast(msg *Message) {
	if msg == nil {
		return
	}
	now := time.Now()
	if msg.expired(now) {
		b.log.WithFields(logrus.Fields{"topic": msg.Topic, "message": msg.ID}).Debug("dropping expired message")
		b.observe("broadcast", "expired")
		return
	}
	if msg.ID != "" {
		if _, dup := b.seen.Get(msg.ID); dup {
			b.observe("broadcast", "duplicate")
			return
		}
		b.seen.Add(msg.ID, struct{}{})
	}

	b.mu.RLock()
	handlers := make([]*subscription, len(b.subs[msg.Topic]))
	copy(handlers, b.subs[msg.Topic])
	b.mu.RUnlock()

	for _, sub := range handlers {
		b.deliver(sub, msg)
	}
	b.observe("broadcast", "delivered")
}

func (b *Bus) deliver(sub *subscription, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithFields(logrus.Fields{
				"topic":        msg.Topic,
				"subscription": sub.id,
				"panic":        r,
			}).Error("subscriber panicked")
		}
	}()
	if err := sub.handler(msg); err != nil {
		b.log.WithFields(logrus.Fields{
			"topic":        msg.Topic,
			"subscription": sub.id,
		}).WithError(err).Warn("subscriber returned error")
	}
}

// Respond registers the single responder for a topic. Request/response is
// one-to-one, unlike broadcast's one-to-many; a later Respond on the same
// topic replaces the earlier responder.
func (b *Bus) Respond(topic string, responder Responder) {
	b.mu.Lock()
	if _, exists := b.responders[topic]; exists {
		b.log.WithField("topic", topic).Warn("replacing existing responder")
	}
	b.responders[topic] = responder
	b.topics[topic] = true
	b.mu.Unlock()
}

// Request invokes the topic's responder and races it against the timeout.
// plugin.ErrNoHandler is returned immediately when no responder is bound;
// plugin.ErrTimeout when the timer fires first, in which case the
// responder's eventual result is discarded. The responder's own error is
// surfaced as the failure. timeout <= 0 uses the bus's default timeout.
func (b *Bus) Request(ctx context.Context, topic string, data any, timeout time.Duration) (any, error) {
	b.mu.RLock()
	responder, ok := b.responders[topic]
	b.mu.RUnlock()

	if !ok {
		b.observe("request", "no_handler")
		return nil, fmt.Errorf("request %q: %w", topic, plugin.ErrNoHandler)
	}
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	started := time.Now()

	type result struct {
		value any
		err   error
	}
	// Buffered so a late responder result is discarded into the channel and
	// can never block or corrupt shared state.
	resultCh := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{err: fmt.Errorf("responder panicked: %v", r)}
			}
		}()
		value, err := responder(ctx, data)
		resultCh <- result{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		if b.metrics != nil {
			b.metrics.BusRequestDuration.WithLabelValues(topic).Observe(time.Since(started).Seconds())
		}
		if res.err != nil {
			b.observe("request", "error")
			return nil, res.err
		}
		b.observe("request", "success")
		return res.value, nil
	case <-timer.C:
		b.observe("request", "timeout")
		return nil, fmt.Errorf("request %q after %s: %w", topic, timeout, plugin.ErrTimeout)
	case <-ctx.Done():
		b.observe("request", "cancelled")
		return nil, ctx.Err()
	}
}

// PluginInboxTopic is the internal topic convention for directed delivery.
func PluginInboxTopic(pluginID string) string {
	return "plugin." + pluginID + ".inbox"
}

// SendToPlugin delivers a message to one plugin's inbox topic rather than a
// broadcast topic.
func (b *Bus) SendToPlugin(pluginID string, msg *Message) {
	if msg == nil {
		return
	}
	msg.Topic = PluginInboxTopic(pluginID)
	b.Broadcast(msg)
}

// CreateTopic records a topic name. Subscribing or responding creates topics
// implicitly; explicit creation exists for administrative bookkeeping.
func (b *Bus) CreateTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = true
}

// DeleteTopic removes a topic and prunes its subscriptions and responder.
// Pruning on deletion keeps the subscription table free of orphans; callers
// that want to keep listening must resubscribe after recreating the topic.
func (b *Bus) DeleteTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.topics, topic)
	for _, sub := range b.subs[topic] {
		delete(b.byID, sub.id)
	}
	delete(b.subs, topic)
	delete(b.responders, topic)
}

// Topics returns all known topic names, sorted.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SubscriberCount returns the number of handlers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) observe(operation, status string) {
	if b.metrics != nil {
		b.metrics.BusMessagesTotal.WithLabelValues(operation, status).Inc()
	}
}
