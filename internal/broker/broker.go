package broker

import (
	"sort"
	"sync"
)

// Wildcard subscribes to every kind published on a topic.
const Wildcard = "*"

// Message is a published message. Kind selects the subscribers that receive
// it; Payload is opaque to the broker.
type Message struct {
	Topic   string
	Kind    string
	Payload any
}

// Subscriber receives messages for one topic.
type Subscriber interface {
	Send(msg *Message)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(msg *Message)

func (f SubscriberFunc) Send(msg *Message) { f(msg) }

// Subscription is the handle returned by Subscribe; it identifies the
// registration for Unsubscribe.
type Subscription struct {
	topic string
	kinds map[string]struct{}
	sub   Subscriber
}

// Topic returns the topic the subscription is registered on.
func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) wants(kind string) bool {
	if _, ok := s.kinds[Wildcard]; ok {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// PanicHandler is called when a subscriber panics during Publish.
type PanicHandler func(msg *Message, recovered any)

// Broker is an in-memory topic broker with synchronous, ordered fan-out:
// subscribers receive each message in registration order on the publisher's
// goroutine. A panicking subscriber is recovered and does not stop delivery
// to the ones after it.
type Broker struct {
	mu      sync.RWMutex
	topics  map[string][]*Subscription // topic -> subscriptions in registration order
	onPanic PanicHandler
}

// New creates a new in-memory broker. onPanic may be nil.
func New(onPanic PanicHandler) *Broker {
	return &Broker{
		topics:  make(map[string][]*Subscription),
		onPanic: onPanic,
	}
}

// Subscribe registers sub on topic for the given kinds and returns its
// handle. Subscribing the same subscriber twice yields two registrations.
func (b *Broker) Subscribe(topic string, kinds []string, sub Subscriber) *Subscription {
	s := &Subscription{
		topic: topic,
		kinds: make(map[string]struct{}, len(kinds)),
		sub:   sub,
	}
	for _, k := range kinds {
		s.kinds[k] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], s)
	return s
}

// Unsubscribe removes a registration. It reports whether s was registered.
func (b *Broker) Unsubscribe(s *Subscription) bool {
	if s == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[s.topic]
	for i, cur := range subs {
		if cur != s {
			continue
		}
		next := make([]*Subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.topics, s.topic)
		} else {
			b.topics[s.topic] = next
		}
		return true
	}
	return false
}

// Publish delivers msg to the topic's subscribers that want its kind and
// returns how many were called. Subscribers registered during delivery do
// not see the message.
func (b *Broker) Publish(msg *Message) int {
	if msg == nil {
		return 0
	}
	b.mu.RLock()
	// the slice is replaced, never modified, on Unsubscribe
	subs := b.topics[msg.Topic]
	b.mu.RUnlock()

	n := 0
	for _, s := range subs {
		if !s.wants(msg.Kind) {
			continue
		}
		n++
		b.deliver(s, msg)
	}
	return n
}

func (b *Broker) deliver(s *Subscription, msg *Message) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(msg, r)
		}
	}()
	s.sub.Send(msg)
}

// ListTopics returns the topics with at least one subscriber, sorted.
func (b *Broker) ListTopics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.topics))
	for t := range b.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// SubscriberCount returns the number of subscriptions for a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
