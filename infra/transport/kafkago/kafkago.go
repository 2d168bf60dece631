// Package kafkago implements the broker capabilities on segmentio/kafka-go.
//
// Publishing maps the exchange to a topic and the routing key to the message
// key. Subscribing maps the queue name to a consumer group reading Topic;
// messages are committed as soon as they are read.
package kafkago

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"blockrelay/infra/transport"
)

type Config struct {
	Brokers  []string
	User     string
	Password string
	// Topic is read by subscribers.
	Topic string
	// PollTimeout bounds a single ReceiveOne call.
	PollTimeout time.Duration
	// FailedPolls is how many consecutive polls may time out while the
	// reader logs errors before ReceiveOne fails. Defaults to 3.
	FailedPolls int
	MaxBytes    int
}

func (c Config) mechanism() sasl.Mechanism {
	if c.User == "" {
		return nil
	}
	return plain.Mechanism{Username: c.User, Password: c.Password}
}

// ---------- Publisher ----------

type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(cfg Config) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
	if m := cfg.mechanism(); m != nil {
		w.Transport = &kafka.Transport{SASL: m}
	}
	if cfg.MaxBytes > 0 {
		w.BatchBytes = int64(cfg.MaxBytes)
	}
	return &Publisher{writer: w}
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	msg := kafka.Message{Topic: exchange, Value: body}
	if routingKey != "" {
		msg.Key = []byte(routingKey)
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transport.Wrap("publish", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ---------- Subscriber ----------

// ErrUnreachable is returned once a reader has logged broker errors on
// FailedPolls consecutive polls without delivering anything.
var ErrUnreachable = errors.New("kafkago: broker unreachable")

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// readerErrors collects what kafka-go reports through ErrorLogger while it
// retries internally.
type readerErrors struct {
	mu   sync.Mutex
	n    uint64
	last string
}

func (e *readerErrors) Printf(format string, args ...interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.n++
	e.last = fmt.Sprintf(format, args...)
}

func (e *readerErrors) snapshot() (uint64, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n, e.last
}

type queueReader struct {
	r      messageReader
	errs   *readerErrors
	failed int
}

type Subscriber struct {
	cfg     Config
	open    func(queue string, errs kafka.Logger) messageReader
	mu      sync.Mutex
	readers map[string]*queueReader
}

func NewSubscriber(cfg Config) *Subscriber {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if cfg.FailedPolls <= 0 {
		cfg.FailedPolls = 3
	}
	s := &Subscriber{cfg: cfg, readers: make(map[string]*queueReader)}
	s.open = s.newReader
	return s
}

func (s *Subscriber) newReader(queue string, errs kafka.Logger) messageReader {
	rc := kafka.ReaderConfig{
		Brokers:     s.cfg.Brokers,
		GroupID:     queue,
		Topic:       s.cfg.Topic,
		ErrorLogger: errs,
	}
	if s.cfg.MaxBytes > 0 {
		rc.MaxBytes = s.cfg.MaxBytes
	}
	if m := s.cfg.mechanism(); m != nil {
		rc.Dialer = &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: m,
		}
	}
	return kafka.NewReader(rc)
}

func (s *Subscriber) reader(queue string) *queueReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	qr, ok := s.readers[queue]
	if !ok {
		errs := &readerErrors{}
		qr = &queueReader{r: s.open(queue, errs), errs: errs}
		s.readers[queue] = qr
	}
	return qr
}

// ReceiveOne returns nil, nil when nothing arrives within PollTimeout. The
// kafka-go reader retries broker failures on its own, so polls that time out
// while it is logging errors are counted and reported as ErrUnreachable.
func (s *Subscriber) ReceiveOne(ctx context.Context, queue string) ([]byte, error) {
	qr := s.reader(queue)
	before, _ := qr.errs.snapshot()

	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	defer cancel()

	msg, err := qr.r.ReadMessage(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, transport.Wrap("receive", err)
		}
		after, last := qr.errs.snapshot()
		if after == before {
			qr.failed = 0
			return nil, nil
		}
		qr.failed++
		if qr.failed >= s.cfg.FailedPolls {
			qr.failed = 0
			return nil, transport.Wrap("receive", fmt.Errorf("%w: %s", ErrUnreachable, last))
		}
		return nil, nil
	}
	qr.failed = 0
	return msg.Value, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for q, qr := range s.readers {
		errs = append(errs, qr.r.Close())
		delete(s.readers, q)
	}
	return errors.Join(errs...)
}
