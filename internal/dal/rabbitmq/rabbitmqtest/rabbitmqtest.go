// Package rabbitmqtest provides in-memory channel and connector fakes.
package rabbitmqtest

import (
	"sync"

	"github.com/corray333/backend-labs/fulfillment/internal/dal/rabbitmq"
	"github.com/streadway/amqp"
)

// Published is one recorded publish.
type Published struct {
	Exchange   string
	RoutingKey string
	Msg        amqp.Publishing
}

// Binding is one recorded queue binding.
type Binding struct {
	Queue      string
	RoutingKey string
	Exchange   string
}

// Channel records declarations and publishes.
type Channel struct {
	mu sync.Mutex

	Exchanges map[string]string
	Queues    map[string]amqp.Table
	Bindings  []Binding
	Prefetch  int
	Published []Published
	Closed    bool

	// PublishErrs are returned by successive Publish calls before they start succeeding.
	PublishErrs []error
	Deliveries  chan amqp.Delivery
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{
		Exchanges:  make(map[string]string),
		Queues:     make(map[string]amqp.Table),
		Deliveries: make(chan amqp.Delivery, 16),
	}
}

func (c *Channel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Exchanges[name] = kind

	return nil
}

func (c *Channel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Queues[name] = args

	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Bindings = append(c.Bindings, Binding{Queue: name, RoutingKey: key, Exchange: exchange})

	return nil
}

func (c *Channel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Prefetch = prefetchCount

	return nil
}

func (c *Channel) Consume(_, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	return c.Deliveries, nil
}

func (c *Channel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Closed {
		return amqp.ErrClosed
	}
	if len(c.PublishErrs) > 0 {
		err := c.PublishErrs[0]
		c.PublishErrs = c.PublishErrs[1:]

		return err
	}
	c.Published = append(c.Published, Published{Exchange: exchange, RoutingKey: key, Msg: msg})

	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Closed = true

	return nil
}

// Messages returns a copy of the recorded publishes.
func (c *Channel) Messages() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Published(nil), c.Published...)
}

// Connector hands out channels from a queue and counts reconnects.
type Connector struct {
	mu sync.Mutex

	channels   []*Channel
	opened     []*Channel
	Reconnects int
	// ReconnectErr is returned by Reconnect.
	ReconnectErr error
}

// NewConnector creates a connector returning the given channels in order. When they run out it
// keeps returning the last one.
func NewConnector(channels ...*Channel) *Connector {
	return &Connector{channels: channels}
}

func (c *Connector) NewChannel() (rabbitmq.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.channels) == 0 {
		return nil, amqp.ErrClosed
	}
	ch := c.channels[0]
	if len(c.channels) > 1 {
		c.channels = c.channels[1:]
	}
	if ch.Closed {
		return nil, amqp.ErrClosed
	}
	c.opened = append(c.opened, ch)

	return ch, nil
}

func (c *Connector) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Reconnects++

	return c.ReconnectErr
}

// Opened returns every channel handed out so far.
func (c *Connector) Opened() []*Channel {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*Channel(nil), c.opened...)
}

// Acknowledger records acks and nacks of deliveries.
type Acknowledger struct {
	mu sync.Mutex

	Acked   []uint64
	Nacked  []uint64
	Requeue []bool
}

func (a *Acknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Acked = append(a.Acked, tag)

	return nil
}

func (a *Acknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.Nacked = append(a.Nacked, tag)
	a.Requeue = append(a.Requeue, requeue)

	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Counts returns the number of acks and nacks.
func (a *Acknowledger) Counts() (acked, nacked int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.Acked), len(a.Nacked)
}
