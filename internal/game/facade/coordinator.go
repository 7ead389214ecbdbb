package facade

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tepache/internal/apperr"
	"github.com/cory-johannsen/tepache/internal/audit"
	"github.com/cory-johannsen/tepache/internal/game/change"
	"github.com/cory-johannsen/tepache/internal/pubsub"
	"github.com/cory-johannsen/tepache/internal/urn"
)

// State is the coordinator's subscription state.
type State int

const (
	Unsubscribed State = iota
	Subscribed
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Subscribed {
		return "SUBSCRIBED"
	}
	return "UNSUBSCRIBED"
}

// Coordinator multiplexes the change stream onto the connections of each game
// session. Every change of a game travels on one topic consumed by one
// goroutine, so it reaches every connection in publish order whatever its Kind.
type Coordinator struct {
	broker     pubsub.Broker
	topics     []string
	registry   *Registry
	logs       audit.Appender
	bufferSize int
	logger     *zap.Logger

	mu        sync.Mutex
	state     State
	subs      []pubsub.Subscription
	stopping  bool
	wg        sync.WaitGroup
	fatal     chan error
	done      chan struct{}
	doneOnce  sync.Once
	listeners []func(State)
}

// NewCoordinator creates an unsubscribed Coordinator over the change topics.
//
// Precondition: broker, logs, and logger must be non-nil.
// Postcondition: bufferSize <= 0 selects the Conn default.
func NewCoordinator(broker pubsub.Broker, logs audit.Appender, bufferSize int, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		broker:     broker,
		topics:     change.Topics(),
		registry:   NewRegistry(),
		logs:       logs,
		bufferSize: bufferSize,
		logger:     logger,
		fatal:      make(chan error, 1),
		done:       make(chan struct{}),
	}
}

// Registry exposes the connection registry.
func (c *Coordinator) Registry() *Registry { return c.registry }

// State returns the current subscription state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn to be called after every state transition.
// fn must not call back into the coordinator.
func (c *Coordinator) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Err delivers the first SubscriptionError raised by an involuntary drop.
func (c *Coordinator) Err() <-chan error { return c.fatal }

// Subscribe opens one subscription per change topic and starts the fanout.
// Calling Subscribe while subscribed is a no-op.
//
// Postcondition: On error no subscription is left open and the state is Unsubscribed.
func (c *Coordinator) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Subscribed {
		return nil
	}

	subs := make([]pubsub.Subscription, 0, len(c.topics))
	for _, topic := range c.topics {
		sub, err := c.broker.Subscribe(ctx, topic)
		if err != nil {
			for _, s := range subs {
				_ = s.Close()
			}
			return apperr.Subscription(topic, err)
		}
		subs = append(subs, sub)
	}

	c.subs = subs
	c.stopping = false
	for i, sub := range subs {
		c.wg.Add(1)
		go c.consume(c.topics[i], sub)
	}
	c.setStateLocked(Subscribed)
	c.logger.Info("facade subscribed", zap.Strings("topics", c.topics))
	return nil
}

// Unsubscribe releases every subscription, waits for the fanout goroutines,
// and closes every connection. It is idempotent.
func (c *Coordinator) Unsubscribe() {
	c.mu.Lock()
	if c.state == Unsubscribed && c.subs == nil {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Close(); err != nil {
			c.logger.Warn("closing subscription", zap.Error(err))
		}
	}
	c.wg.Wait()
	c.registry.CloseAll()

	c.mu.Lock()
	c.setStateLocked(Unsubscribed)
	c.mu.Unlock()
	c.logger.Info("facade unsubscribed")
}

// Start subscribes and blocks until Stop is called or a subscription drops.
// It implements server.Service.
//
// Postcondition: Returns a SubscriptionError on involuntary unsubscription, nil after Stop.
func (c *Coordinator) Start() error {
	if err := c.Subscribe(context.Background()); err != nil {
		return err
	}
	select {
	case err := <-c.fatal:
		return err
	case <-c.done:
		return nil
	}
}

// Stop unsubscribes and releases Start.
func (c *Coordinator) Stop() {
	c.Unsubscribe()
	c.doneOnce.Do(func() { close(c.done) })
}

// Connect registers a connection for uid on gameSessionURN.
//
// Postcondition: Returns a ValidationError for a malformed URN or a
// SubscriptionError when the coordinator is not subscribed.
func (c *Coordinator) Connect(gameSessionURN, uid string) (*Conn, error) {
	if !urn.Valid(gameSessionURN) {
		return nil, apperr.Validation("gameSessionUrn %q is required to be a valid urn", gameSessionURN)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Subscribed {
		return nil, apperr.Subscription("facade", errors.New("not subscribed"))
	}
	conn := NewConn(gameSessionURN, uid, c.bufferSize)
	c.registry.Add(conn)
	c.logger.Debug("connection registered",
		zap.String("game_session_urn", gameSessionURN),
		zap.String("conn_id", conn.ID()),
	)
	return conn, nil
}

// Disconnect unregisters and closes conn and appends a disconnect Log entry.
// Disconnecting a connection twice appends one entry.
func (c *Coordinator) Disconnect(ctx context.Context, conn *Conn) {
	if !c.registry.Remove(conn) {
		_ = conn.Close()
		return
	}
	_ = conn.Close()
	c.logDisconnect(ctx, conn, "closed")
}

// Fanout pushes payload to every connection of gameSessionURN. A connection
// that cannot accept it is dropped.
func (c *Coordinator) Fanout(ctx context.Context, gameSessionURN string, payload []byte) int {
	delivered := 0
	for _, conn := range c.registry.Conns(gameSessionURN) {
		if err := conn.Push(payload); err != nil {
			if c.registry.Remove(conn) {
				_ = conn.Close()
				c.logger.Warn("dropping connection",
					zap.String("game_session_urn", gameSessionURN),
					zap.String("conn_id", conn.ID()),
					zap.Error(err),
				)
				c.logDisconnect(ctx, conn, err.Error())
			}
			continue
		}
		delivered++
	}
	return delivered
}

func (c *Coordinator) consume(topic string, sub pubsub.Subscription) {
	defer c.wg.Done()
	ctx := context.Background()
	for msg := range sub.Messages() {
		ch, err := change.Decode(msg.Payload)
		if err != nil {
			c.logger.Warn("discarding malformed change", zap.String("topic", topic), zap.Error(err))
			continue
		}
		c.Fanout(ctx, ch.GameSessionURN, msg.Payload)
	}

	c.mu.Lock()
	stopping := c.stopping
	c.mu.Unlock()
	if stopping {
		return
	}
	c.fail(apperr.Subscription(topic, sub.Err()))
}

// fail handles an involuntary subscription drop: the remaining subscriptions
// are released and the error is surfaced once through Err.
func (c *Coordinator) fail(err error) {
	c.logger.Error("subscription dropped", zap.Error(err))
	select {
	case c.fatal <- err:
	default:
	}
	// Unsubscribe waits on wg, which includes this goroutine.
	go c.Unsubscribe()
}

func (c *Coordinator) logDisconnect(ctx context.Context, conn *Conn, reason string) {
	if _, err := c.logs.Append(ctx, audit.Entry{
		GameSessionURN: conn.GameSessionURN(),
		Kind:           audit.KindDisconnect,
		Message:        fmt.Sprintf("%s disconnected", conn.UID()),
		Data:           map[string]string{"connId": conn.ID(), "reason": reason},
	}); err != nil {
		c.logger.Warn("appending disconnect log",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	for _, fn := range c.listeners {
		fn(s)
	}
}
