package rabbitmq

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
)

// ErrConnectionFailed is returned when every connection attempt failed.
var ErrConnectionFailed = errors.New("rabbitmq connection failed")

// Channel is the subset of *amqp.Channel used by publishers and consumers.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Connector opens channels and re-dials a lost connection.
type Connector interface {
	NewChannel() (Channel, error)
	Reconnect() error
}

// Config holds connection settings.
type Config struct {
	User        string
	Password    string
	Host        string
	Port        int
	VHost       string
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c Config) url() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.VHost)
}

type dialFunc func(url string) (*amqp.Connection, error)

// Client owns one AMQP connection. Each publisher and consumer opens its own channel on it.
type Client struct {
	cfg  Config
	dial dialFunc

	mu   sync.RWMutex
	conn *amqp.Connection
	// serializes re-dials so concurrent callers share one new connection
	reconnectMu sync.Mutex
}

// NewClient connects with bounded retry.
func NewClient(cfg Config) (*Client, error) {
	return newClient(cfg, amqp.Dial)
}

func newClient(cfg Config, dial dialFunc) (*Client, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	c := &Client{cfg: cfg, dial: dial}
	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// MustNewClient creates a client from configuration and panics when the broker is unreachable.
func MustNewClient() *Client {
	host := viper.GetString("rabbitmq.host")
	if host == "" {
		host = "rabbitmq"
	}
	port := viper.GetInt("rabbitmq.port")
	if port == 0 {
		port = 5672
	}
	maxAttempts := viper.GetInt("rabbitmq.connect.max_attempts")
	if maxAttempts == 0 {
		maxAttempts = 5
	}
	retryDelaySeconds := viper.GetInt("rabbitmq.connect.retry_delay_seconds")
	if retryDelaySeconds == 0 {
		retryDelaySeconds = 5
	}

	client, err := NewClient(Config{
		User:        os.Getenv("RABBITMQ_DEFAULT_USER"),
		Password:    os.Getenv("RABBITMQ_DEFAULT_PASS"),
		Host:        host,
		Port:        port,
		VHost:       viper.GetString("rabbitmq.vhost"),
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Duration(retryDelaySeconds) * time.Second,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to RabbitMQ: %v", err))
	}

	slog.Info("RabbitMQ connected", "host", host, "port", port)

	return client
}

func (c *Client) connect() error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		conn, err := c.dial(c.cfg.url())
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()

			return nil
		}
		lastErr = err

		slog.Warn("RabbitMQ connection attempt failed",
			"attempt", attempt,
			"max_attempts", c.cfg.MaxAttempts,
			"error", err,
		)
		if attempt < c.cfg.MaxAttempts {
			time.Sleep(c.cfg.RetryDelay)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, c.cfg.MaxAttempts, lastErr)
}

// Reconnect dials again with the same policy unless the current connection is still open.
// A caller that lost only its channel, or lost a race with another caller, keeps the live connection.
func (c *Client) Reconnect() error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	if c.conn != nil && !c.conn.IsClosed() {
		c.mu.Unlock()

		return nil
	}
	c.conn = nil
	c.mu.Unlock()

	slog.Info("Reconnecting to RabbitMQ")

	return c.connect()
}

// NewChannel opens a dedicated channel.
func (c *Client) NewChannel() (Channel, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, amqp.ErrClosed
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

// Close closes the connection for graceful shutdown.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}

	return c.conn.Close()
}

// IsClosedError reports whether err means the connection or channel is gone.
func IsClosedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}

	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced
	}

	return false
}
