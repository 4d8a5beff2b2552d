package outbox

import (
	"time"
)

// OutboxMessage represents a message waiting to be published to RabbitMQ.
// Rows are written when a direct publish fails and for compensating commands.
type OutboxMessage struct {
	ID            int64
	ExchangeName  string
	RoutingKey    string
	Payload       []byte
	ContentType   string
	CorrelationID string
	RetryCount    int
	MaxRetries    int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	NextRetryAt   time.Time
}
