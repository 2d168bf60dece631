// Package saramapub publishes relay envelopes with a sarama SyncProducer.
// The exchange maps to the Kafka topic and the routing key to the message key.
package saramapub

import (
	"context"

	"github.com/IBM/sarama"

	"blockrelay/infra/transport"
)

type Config struct {
	Brokers         []string
	ClientID        string
	User            string
	Password        string
	MaxMessageBytes int
	Retries         int
}

type Publisher struct {
	producer sarama.SyncProducer
}

func New(cfg Config) (*Publisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	if cfg.Retries > 0 {
		sc.Producer.Retry.Max = cfg.Retries
	}
	if cfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.User != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.User
		sc.Net.SASL.Password = cfg.Password
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, transport.Wrap("connect", err)
	}
	return &Publisher{producer: producer}, nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(p sarama.SyncProducer) *Publisher {
	return &Publisher{producer: p}
}

func (p *Publisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: exchange,
		Value: sarama.ByteEncoder(body),
	}
	if routingKey != "" {
		msg.Key = sarama.StringEncoder(routingKey)
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return transport.Wrap("publish", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
