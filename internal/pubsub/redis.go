package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker is a Broker backed by Redis PUBLISH/SUBSCRIBE. Redis delivers
// messages of one channel to every subscriber in publish order.
type RedisBroker struct {
	client         *redis.Client
	prefix         string
	healthInterval time.Duration
}

// NewRedisBroker creates a broker on client. Topics are mapped to Redis
// channels named "<prefix>:<topic>".
//
// Precondition: client must be non-nil.
// Postcondition: healthInterval <= 0 selects a 15s ping interval for subscriptions.
func NewRedisBroker(client *redis.Client, prefix string, healthInterval time.Duration) *RedisBroker {
	if healthInterval <= 0 {
		healthInterval = 15 * time.Second
	}
	return &RedisBroker{client: client, prefix: prefix, healthInterval: healthInterval}
}

func (b *RedisBroker) channel(topic string) string {
	if b.prefix == "" {
		return topic
	}
	return b.prefix + ":" + topic
}

// Publish sends payload on topic's Redis channel.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens a Redis subscription on topic and waits for the server's
// confirmation before returning.
//
// Postcondition: The subscription ends with a non-nil Err if a health ping fails.
func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	s := &redisSubscription{
		ps:    ps,
		topic: topic,
		out:   make(chan Message),
		done:  make(chan struct{}),
	}
	go s.pump()
	go s.watch(b.healthInterval)
	return s, nil
}

// Close closes the underlying Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscription struct {
	ps    *redis.PubSub
	topic string
	out   chan Message
	done  chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *redisSubscription) Messages() <-chan Message { return s.out }

func (s *redisSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSubscription) Close() error {
	s.end(nil)
	return nil
}

func (s *redisSubscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		_ = s.ps.Close()
	})
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-ch:
			if !ok {
				s.end(ErrClosed)
				return
			}
			select {
			case s.out <- Message{Topic: s.topic, Payload: []byte(m.Payload)}:
			case <-s.done:
				return
			}
		}
	}
}

// watch pings the subscription connection until the subscription ends.
func (s *redisSubscription) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := s.ps.Ping(ctx)
			cancel()
			if err != nil {
				s.end(fmt.Errorf("pinging subscription: %w", err))
				return
			}
		}
	}
}
