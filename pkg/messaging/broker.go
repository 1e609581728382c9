package messaging

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the broker refuses work, e.g. while its
// circuit breaker is open.
var ErrUnavailable = errors.New("message broker unavailable")

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope used on every channel.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
