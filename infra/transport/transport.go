// Package transport defines the broker capabilities the relay and the
// reconstructor depend on. Implementations live in subpackages.
package transport

import (
	"context"
	"errors"
)

// Publisher hands a payload to the broker. A nil error means the broker
// accepted it.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

// Subscriber polls one message at a time. ReceiveOne returns nil, nil when
// the queue is empty at poll time. A received message counts as consumed.
type Subscriber interface {
	ReceiveOne(ctx context.Context, queue string) ([]byte, error)
	Close() error
}

// Error wraps every connection, publish or receive failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "transport: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// IsTransport reports whether err came from the broker.
func IsTransport(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
