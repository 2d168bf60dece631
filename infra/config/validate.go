package config

import (
	"errors"
	"fmt"
)

// Role selects which settings are required.
type Role int

const (
	RoleRelay Role = iota
	RoleWriter
	RoleTool
)

var (
	ErrMissingBlockDir = errors.New("store.blockDir is required")
	ErrMissingExchange = errors.New("broker.exchange is required")
	ErrMissingQueue    = errors.New("broker.queue is required")
	ErrMissingHosts    = errors.New("broker.hosts is required")
)

func (c Config) Validate(role Role) error {
	var errs []error
	if c.Store.BlockDir == "" {
		errs = append(errs, ErrMissingBlockDir)
	}
	if role == RoleTool {
		return errors.Join(errs...)
	}

	switch c.TransportFor(role) {
	case TransportSarama, TransportKafkaGo:
	default:
		errs = append(errs, fmt.Errorf("broker.transport %q is not one of sarama, kafka-go", c.Broker.Transport))
	}
	if len(c.Broker.Hosts) == 0 {
		errs = append(errs, ErrMissingHosts)
	}
	if c.Broker.Exchange == "" {
		errs = append(errs, ErrMissingExchange)
	}

	switch role {
	case RoleRelay:
		if c.Checkpoint.Backend != BackendPebble && c.Checkpoint.Backend != BackendFile {
			errs = append(errs, fmt.Errorf("checkpoint.backend %q is not one of pebble, file", c.Checkpoint.Backend))
		}
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint.path is required"))
		}
		if c.Checkpoint.FlushEvery <= 0 {
			errs = append(errs, errors.New("checkpoint.flushEvery must be positive"))
		}
		if c.Rate.BytesPerSecond < 0 || c.Rate.RecordsPerSecond < 0 {
			errs = append(errs, errors.New("rate ceilings must not be negative"))
		}
		if c.Rate.Interval <= 0 {
			errs = append(errs, errors.New("rate.interval must be positive"))
		}
	case RoleWriter:
		if c.TransportFor(role) == TransportSarama {
			errs = append(errs, errors.New("broker.transport sarama is publish-only; use kafka-go for the writer"))
		}
		if c.Broker.Queue == "" {
			errs = append(errs, ErrMissingQueue)
		}
	}
	return errors.Join(errs...)
}

// TransportFor resolves the transport used by role.
func (c Config) TransportFor(role Role) string {
	if c.Broker.Transport != "" {
		return c.Broker.Transport
	}
	if role == RoleWriter {
		return TransportKafkaGo
	}
	return TransportSarama
}
