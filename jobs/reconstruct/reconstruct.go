// Package reconstruct consumes relayed records and writes each one back at
// its origin file and offset.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"blockrelay/infra/block"
	"blockrelay/infra/blockfile"
	"blockrelay/infra/metrics"
	"blockrelay/infra/transport"
)

type Config struct {
	Queue string
	// PollDelay is the pause after an empty poll.
	PollDelay time.Duration
}

// BlockWriter is satisfied by *blockfile.Writer.
type BlockWriter interface {
	WriteBlock(block.Block) error
}

type Reconstructor struct {
	cfg Config
	sub transport.Subscriber
	w   BlockWriter
	log *slog.Logger
	m   *metrics.Writer
}

func New(cfg Config, sub transport.Subscriber, w BlockWriter, logger *slog.Logger, m *metrics.Writer) *Reconstructor {
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{cfg: cfg, sub: sub, w: w, log: logger, m: m}
}

// Step handles at most one message. It reports whether a message was
// received; malformed messages are dropped and still count as received.
func (r *Reconstructor) Step(ctx context.Context) (bool, error) {
	msg, err := r.sub.ReceiveOne(ctx, r.cfg.Queue)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	b, err := block.DecodeEnvelope(msg)
	if err == nil {
		err = b.Validate()
	}
	if err != nil {
		var de *block.DecodeError
		reason := "undecodable"
		if errors.As(err, &de) {
			reason = de.Kind.String()
		}
		r.log.Warn("dropping malformed record", "reason", reason, "size", len(msg), "error", err)
		r.m.Dropped(reason)
		return true, nil
	}

	if err := r.w.WriteBlock(b); err != nil {
		if errors.Is(err, blockfile.ErrBadOrigin) {
			r.log.Warn("dropping record with impossible origin", "file", b.OriginFile, "offset", b.OriginOffset, "length", b.Length)
			r.m.Dropped("BAD_ORIGIN")
			return true, nil
		}
		return true, fmt.Errorf("write block %d:%d: %w", b.OriginFile, b.OriginOffset, err)
	}
	r.m.Written(b.Size())
	return true, nil
}

// Run polls until ctx is done or a receive or write fails.
func (r *Reconstructor) Run(ctx context.Context) error {
	written := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		got, err := r.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if got {
			written++
			continue
		}
		if written > 0 {
			r.log.Info("queue drained", "records", written)
			written = 0
		}

		t := time.NewTimer(r.cfg.PollDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
