package pubsub

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBroker is an in-process Broker. Publishes are serialized, so every
// subscription observes the same global publish order.
type MemoryBroker struct {
	bufferSize int

	pubMu  sync.Mutex
	mu     sync.Mutex
	topics map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBroker creates an empty MemoryBroker.
//
// Postcondition: bufferSize <= 0 selects a default of 64 queued messages per subscription.
func NewMemoryBroker(bufferSize int) *MemoryBroker {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &MemoryBroker{
		bufferSize: bufferSize,
		topics:     make(map[string]map[*memorySubscription]struct{}),
	}
}

// Publish delivers payload to every current subscription of topic, blocking
// while a subscription's queue is full.
//
// Postcondition: Returns ctx.Err() if ctx ends before delivery completes, or ErrClosed if the broker is closed.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*memorySubscription, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	msg := Message{Topic: topic, Payload: payload}
	for _, s := range subs {
		if err := s.deliver(ctx, msg); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
	}
	return nil
}

// Subscribe opens a subscription on topic.
func (b *MemoryBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySubscription{
		broker: b,
		topic:  topic,
		in:     make(chan Message, b.bufferSize),
		out:    make(chan Message),
		done:   make(chan struct{}),
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*memorySubscription]struct{})
	}
	b.topics[topic][s] = struct{}{}
	go s.pump()
	return s, nil
}

// Close ends every open subscription with ErrClosed. Later Publish and
// Subscribe calls fail.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*memorySubscription
	for _, set := range b.topics {
		for s := range set {
			subs = append(subs, s)
		}
	}
	b.topics = make(map[string]map[*memorySubscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.end(ErrClosed)
	}
	return nil
}

// SubscriberCount returns the number of open subscriptions on topic.
func (b *MemoryBroker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

func (b *MemoryBroker) remove(s *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.topics[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.topics, s.topic)
		}
	}
}

type memorySubscription struct {
	broker *MemoryBroker
	topic  string
	in     chan Message
	out    chan Message
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *memorySubscription) Messages() <-chan Message { return s.out }

func (s *memorySubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memorySubscription) Close() error {
	s.broker.remove(s)
	s.end(nil)
	return nil
}

func (s *memorySubscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *memorySubscription) deliver(ctx context.Context, msg Message) error {
	select {
	case s.in <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump moves queued messages to the consumer and closes out once the subscription ends.
func (s *memorySubscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.in:
			select {
			case s.out <- msg:
			case <-s.done:
				return
			}
		}
	}
}
