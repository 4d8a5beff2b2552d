package rabbitmq

import (
	"github.com/streadway/amqp"
)

// Dead-letter name suffixes.
const (
	DeadLetterExchangeSuffix = ".dlx"
	DeadLetterQueueSuffix    = ".dlq"
)

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
	// DeadLetterExchange, when set, receives messages rejected without requeue.
	DeadLetterExchange string
}

// DeclareQueue declares a queue with the given configuration.
func DeclareQueue(ch Channel, cfg DeclareQueueConfig) (amqp.Queue, error) {
	args := amqp.Table{}
	for k, v := range cfg.Args {
		args[k] = v
	}
	if cfg.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = cfg.DeadLetterExchange
	}

	return ch.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		args,
	)
}

// DeclareExchange declares a durable topic exchange.
func DeclareExchange(ch Channel, name string) error {
	return ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}

// Binding describes an exchange, a queue and the key binding them.
type Binding struct {
	Exchange   string
	Queue      string
	RoutingKey string
	// DeadLetter declares <exchange>.dlx and <queue>.dlq and routes rejected messages there.
	DeadLetter bool
}

// DeclareBinding declares the exchange, the durable queue and the binding.
func DeclareBinding(ch Channel, b Binding) (amqp.Queue, error) {
	if err := DeclareExchange(ch, b.Exchange); err != nil {
		return amqp.Queue{}, err
	}

	cfg := DeclareQueueConfig{Name: b.Queue, Durable: true}
	if b.DeadLetter {
		dlx := b.Exchange + DeadLetterExchangeSuffix
		if err := ch.ExchangeDeclare(dlx, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return amqp.Queue{}, err
		}
		dlq, err := DeclareQueue(ch, DeclareQueueConfig{Name: b.Queue + DeadLetterQueueSuffix, Durable: true})
		if err != nil {
			return amqp.Queue{}, err
		}
		if err := ch.QueueBind(dlq.Name, "", dlx, false, nil); err != nil {
			return amqp.Queue{}, err
		}
		cfg.DeadLetterExchange = dlx
	}

	queue, err := DeclareQueue(ch, cfg)
	if err != nil {
		return amqp.Queue{}, err
	}
	if err := ch.QueueBind(queue.Name, b.RoutingKey, b.Exchange, false, nil); err != nil {
		return amqp.Queue{}, err
	}

	return queue, nil
}

type ConsumeConfig struct {
	Queue     string
	Consumer  string
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Prefetch  int
	Args      amqp.Table
}

// Consume applies the prefetch limit and starts consuming from the queue.
func Consume(ch Channel, cfg ConsumeConfig) (<-chan amqp.Delivery, error) {
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return nil, err
		}
	}

	return ch.Consume(
		cfg.Queue,
		cfg.Consumer,
		cfg.AutoAck,
		cfg.Exclusive,
		cfg.NoLocal,
		cfg.NoWait,
		cfg.Args,
	)
}
