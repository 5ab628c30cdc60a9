package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/sweeney/irrigator/internal/logic"
)

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	BufferSize     int           // messages held while disconnected
	PublishTimeout time.Duration // per-publish wait
	TripAfter      uint32        // consecutive failures before the breaker opens
	OpenFor        time.Duration // how long the breaker stays open
}

// DefaultOptions returns the options used by the daemon.
func DefaultOptions(broker string) Options {
	return Options{
		Broker:         broker,
		ClientID:       "irrigator",
		BufferSize:     100,
		PublishTimeout: 5 * time.Second,
		TripAfter:      3,
		OpenFor:        30 * time.Second,
	}
}

var errPublishTimeout = errors.New("publish timeout")

// client is the subset of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
//
// Messages that cannot be delivered (broker down, publish failing, breaker
// open) are kept in a ring buffer and replayed when the connection returns.
// The circuit breaker keeps a dead broker from costing a publish timeout on
// every controller transition.
type RealPublisher struct {
	client  client
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	mu         sync.Mutex
	buf        *ringBuffer
	onBuffered func(int)
	connected  bool // true once the first connection succeeded
}

// NewRealPublisher creates a publisher for the given broker. It connects in
// the background and keeps retrying, so a missing broker never blocks
// startup.
func NewRealPublisher(opts Options) *RealPublisher {
	p := newPublisher(nil, opts)

	// Marshalling a SystemEvent of plain strings cannot fail.
	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(co)
	p.client = c
	c.Connect()

	return p
}

func newPublisher(c client, opts Options) *RealPublisher {
	size := opts.BufferSize
	if size <= 0 {
		size = 1
	}
	tripAfter := opts.TripAfter
	if tripAfter == 0 {
		tripAfter = 1
	}

	p := &RealPublisher{
		client:  c,
		timeout: opts.PublishTimeout,
		buf:     newRingBuffer(size),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "mqtt",
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("mqtt: breaker %s %s -> %s", name, from, to)
		},
	})
	return p
}

// SetBufferObserver registers a callback that receives the buffer depth
// whenever it changes.
func (p *RealPublisher) SetBufferObserver(fn func(int)) {
	p.mu.Lock()
	p.onBuffered = fn
	p.mu.Unlock()
}

// Publish sends a watering event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// send publishes msg or buffers it for replay. Buffering because the broker
// is unreachable or the breaker is open is not an error.
func (p *RealPublisher) send(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return nil
	}

	_, err := p.breaker.Execute(func() (interface{}, error) {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(p.timeout) {
			return nil, errPublishTimeout
		}
		return nil, token.Error()
	})
	if err == nil {
		return nil
	}

	p.buffer(msg)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil
	}
	return fmt.Errorf("publish %s: %w", msg.topic, err)
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	p.buf.push(msg)
	n := p.buf.len()
	fn := p.onBuffered
	p.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// onConnect replays buffered messages and announces reconnection.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	log.Printf("mqtt: connected")
	if n := p.flush(); n > 0 {
		log.Printf("mqtt: replayed %d buffered messages", n)
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}); err != nil {
			log.Printf("mqtt: publish reconnected event: %v", err)
		}
	}
}

// flush resends every buffered message. Messages that fail again go back
// into the buffer. Returns the number of messages drained.
func (p *RealPublisher) flush() int {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	fn := p.onBuffered
	p.mu.Unlock()
	if fn != nil && len(msgs) > 0 {
		fn(0)
	}

	for _, m := range msgs {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay: %v", err)
		}
	}
	return len(msgs)
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
