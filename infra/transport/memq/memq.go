// Package memq is an in-process broker with fanout exchanges bound to FIFO
// queues, used by tests in place of a real broker.
package memq

import (
	"context"
	"errors"
	"sync"

	"blockrelay/infra/transport"
)

var ErrClosed = errors.New("memq: broker closed")

type Broker struct {
	mu       sync.Mutex
	bindings map[string][]string
	queues   map[string][][]byte
	failNext []error
	closed   bool
}

func New() *Broker {
	return &Broker{
		bindings: make(map[string][]string),
		queues:   make(map[string][][]byte),
	}
}

// Bind routes everything published to exchange into queue.
func (b *Broker) Bind(exchange, queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings[exchange] = append(b.bindings[exchange], queue)
	if _, ok := b.queues[queue]; !ok {
		b.queues[queue] = nil
	}
}

// FailNext makes the next publish or receive return err.
func (b *Broker) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = append(b.failNext, err)
}

func (b *Broker) takeFailure() error {
	if len(b.failNext) == 0 {
		return nil
	}
	err := b.failNext[0]
	b.failNext = b.failNext[1:]
	return err
}

// Publish copies body into every bound queue. Unroutable messages are dropped.
func (b *Broker) Publish(ctx context.Context, exchange, _ string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return transport.Wrap("publish", ErrClosed)
	}
	if err := b.takeFailure(); err != nil {
		return transport.Wrap("publish", err)
	}
	for _, q := range b.bindings[exchange] {
		b.queues[q] = append(b.queues[q], append([]byte(nil), body...))
	}
	return nil
}

// Push enqueues body directly, bypassing exchanges.
func (b *Broker) Push(queue string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], body)
}

func (b *Broker) ReceiveOne(ctx context.Context, queue string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, transport.Wrap("receive", ErrClosed)
	}
	if err := b.takeFailure(); err != nil {
		return nil, transport.Wrap("receive", err)
	}
	q := b.queues[queue]
	if len(q) == 0 {
		return nil, nil
	}
	msg := q[0]
	b.queues[queue] = q[1:]
	return msg, nil
}

func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// Messages returns a copy of the pending messages of queue.
func (b *Broker) Messages(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.queues[queue]...)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

var (
	_ transport.Publisher  = (*Broker)(nil)
	_ transport.Subscriber = (*Broker)(nil)
)
