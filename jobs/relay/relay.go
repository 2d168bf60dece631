// Package relay streams records from the rotating block files to the broker
// and advances the durable checkpoint behind them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blockrelay/infra/block"
	"blockrelay/infra/blockfile"
	"blockrelay/infra/checkpoint"
	"blockrelay/infra/metrics"
	"blockrelay/infra/transport"
)

type Config struct {
	Exchange   string
	RoutingKey string
	// RetryDelay separates read cycles.
	RetryDelay time.Duration
}

// Reader is satisfied by *blockfile.Cursor.
type Reader interface {
	Next() (blockfile.Result, error)
	Position() checkpoint.Position
	Close() error
}

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	CheckRate(ctx context.Context, n int) error
}

// StopReason says why a cycle ended.
type StopReason uint8

const (
	// Drained: no further record is available yet.
	Drained StopReason = iota
	// Corrupt: a malformed record was reached; the cycle stopped in front of it.
	Corrupt
	Cancelled
)

func (r StopReason) String() string {
	switch r {
	case Drained:
		return "drained"
	case Corrupt:
		return "corrupt"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type CycleResult struct {
	Published int
	Bytes     int64
	Reason    StopReason
	// DecodeErr is set when Reason is Corrupt.
	DecodeErr error
}

type Relay struct {
	cfg     Config
	cursor  Reader
	limiter Limiter
	pub     transport.Publisher
	tracker *checkpoint.Tracker
	log     *slog.Logger
	m       *metrics.Relay
}

func New(cfg Config, cursor Reader, limiter Limiter, pub transport.Publisher, tracker *checkpoint.Tracker, logger *slog.Logger, m *metrics.Relay) *Relay {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		cfg:     cfg,
		cursor:  cursor,
		limiter: limiter,
		pub:     pub,
		tracker: tracker,
		log:     logger,
		m:       m,
	}
}

// Cycle publishes records until none is available, a malformed record is
// reached or ctx is done, then persists the checkpoint. A transport error
// aborts the cycle without persisting anything further.
func (r *Relay) Cycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	for {
		if ctx.Err() != nil {
			res.Reason = Cancelled
			break
		}

		out, err := r.cursor.Next()
		if err == nil && out.Status == blockfile.Record {
			err = out.Block.Validate()
		}
		if err != nil {
			var de *block.DecodeError
			if !errors.As(err, &de) {
				return res, fmt.Errorf("read %s: %w", r.cursor.Position(), err)
			}
			r.log.Info("stopping at malformed record", "position", r.cursor.Position().String(), "kind", de.Kind.String(), "error", err)
			r.m.DecodeStop(de.Kind.String())
			res.Reason = Corrupt
			res.DecodeErr = err
			break
		}
		if out.Status == blockfile.NotYetAvailable {
			r.log.Debug("waiting for more data", "position", r.cursor.Position().String())
			res.Reason = Drained
			break
		}

		b := out.Block
		msg := block.EncodeEnvelope(b)
		if err := r.limiter.CheckRate(ctx, len(msg)); err != nil {
			res.Reason = Cancelled
			break
		}
		if err := r.pub.Publish(ctx, r.cfg.Exchange, r.cfg.RoutingKey, msg); err != nil {
			if !transport.IsTransport(err) && ctx.Err() != nil {
				res.Reason = Cancelled
				break
			}
			r.m.TransportError()
			return res, err
		}
		res.Published++
		res.Bytes += int64(len(msg))
		r.m.Published(len(msg))

		flushed, err := r.tracker.Advance(checkpoint.Position{File: b.OriginFile, Offset: b.OriginOffset})
		if err != nil {
			return res, fmt.Errorf("persist checkpoint: %w", err)
		}
		if flushed {
			r.checkpointSaved()
		}
	}

	before := r.tracker.Persisted()
	if err := r.tracker.Flush(); err != nil {
		return res, fmt.Errorf("persist checkpoint: %w", err)
	}
	if r.tracker.Persisted() != before {
		r.checkpointSaved()
	}
	return res, nil
}

func (r *Relay) checkpointSaved() {
	p := r.tracker.Persisted()
	r.m.CheckpointSaved(p.File, p.Offset)
	r.log.Debug("checkpoint saved", "position", p.String())
}

// Run repeats Cycle, pausing RetryDelay after each one, until ctx is done or
// a cycle fails. The cursor is closed on return.
func (r *Relay) Run(ctx context.Context) error {
	defer r.cursor.Close()
	for {
		res, err := r.Cycle(ctx)
		if err != nil {
			return err
		}
		if res.Published > 0 {
			r.log.Info("cycle finished", "published", res.Published, "bytes", res.Bytes,
				"reason", res.Reason.String(), "checkpoint", r.tracker.Persisted().String())
		}
		if res.Reason == Cancelled {
			return nil
		}

		t := time.NewTimer(r.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
