// Package supervise keeps broker sessions alive: connections are retried with
// a fixed delay and a session that fails is started again after that delay.
package supervise

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

type Policy struct {
	// Delay between attempts.
	Delay time.Duration
	// MaxTries bounds Connect. Zero retries until ctx is done.
	MaxTries uint
}

func (p Policy) backOff() backoff.BackOff {
	d := p.Delay
	if d <= 0 {
		d = 10 * time.Second
	}
	return backoff.NewConstantBackOff(d)
}

// Connect calls dial until it succeeds, the policy gives up or ctx ends.
func Connect[T any](ctx context.Context, p Policy, logger *slog.Logger, what string, dial func(context.Context) (T, error)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("connect failed, retrying", "target", what, "error", err, "retry_in", next)
		}),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	v, err := backoff.Retry(ctx, func() (T, error) { return dial(ctx) }, opts...)
	if err != nil {
		return v, fmt.Errorf("connect %s: %w", what, err)
	}
	return v, nil
}

// Run starts session again after every failure until ctx is done. A session
// that returns nil while ctx is still live is restarted as well.
func Run(ctx context.Context, p Policy, logger *slog.Logger, name string, session func(context.Context) error) error {
	b := p.backOff()
	for {
		err := session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		next := b.NextBackOff()
		if err != nil {
			logger.Error("session failed", "session", name, "error", err, "restart_in", next)
		} else {
			logger.Info("session ended", "session", name, "restart_in", next)
		}
		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
